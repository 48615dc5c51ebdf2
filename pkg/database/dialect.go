package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect captures the SQL differences between the production store
// (MySQL) and the embedded store used for local runs and tests (SQLite).
type Dialect interface {
	Name() string
	DriverName() string
	// NormalizeDSN adds the connection options the queries rely on.
	NormalizeDSN(dsn string) (string, error)
	// LockClause is appended to SELECTs that must hold a row update lock.
	LockClause() string
	// TxOptions returns the isolation used for ingestion and classification.
	TxOptions() *sql.TxOptions
	UpsertDataSourceSQL() string
	AddSpendSQL() string
	Schema() []string
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql":
		return MySQL{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unknown database dialect %q", name)
	}
}

// MySQL is the production dialect. Rows are locked with SELECT ... FOR
// UPDATE and transactions run at READ COMMITTED.
type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }
func (MySQL) LockClause() string { return " FOR UPDATE" }

func (MySQL) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

func (MySQL) NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

func (MySQL) UpsertDataSourceSQL() string {
	return `INSERT INTO poi_data_sources
		(poi_id, source_name, source_id, rating, review_count, price_level, ranking, raw_payload, last_scraped_at, scrape_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			source_id = VALUES(source_id),
			rating = VALUES(rating),
			review_count = VALUES(review_count),
			price_level = VALUES(price_level),
			ranking = VALUES(ranking),
			raw_payload = VALUES(raw_payload),
			last_scraped_at = VALUES(last_scraped_at),
			scrape_status = VALUES(scrape_status)`
}

func (MySQL) AddSpendSQL() string {
	return `INSERT INTO provider_spend (month, amount_usd, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE amount_usd = amount_usd + VALUES(amount_usd), updated_at = VALUES(updated_at)`
}

func (MySQL) Schema() []string { return mysqlSchema }

// SQLite has no row locks. Transactions begin IMMEDIATE instead, taking the
// database write lock up front, so a second unit of work waits (up to the
// busy timeout) in Begin until the first ends.
type SQLite struct{}

func (SQLite) Name() string              { return "sqlite" }
func (SQLite) DriverName() string        { return "sqlite" }
func (SQLite) LockClause() string        { return "" }
func (SQLite) TxOptions() *sql.TxOptions { return nil }

func (SQLite) NormalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty sqlite dsn")
	}
	var extra []string
	if !strings.Contains(dsn, "foreign_keys") {
		extra = append(extra, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		extra = append(extra, "_pragma=busy_timeout(5000)")
	}
	if !strings.Contains(dsn, "_txlock") {
		extra = append(extra, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "_time_format") {
		extra = append(extra, "_time_format=sqlite")
	}
	if len(extra) == 0 {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&"), nil
}

func (SQLite) UpsertDataSourceSQL() string {
	return `INSERT INTO poi_data_sources
		(poi_id, source_name, source_id, rating, review_count, price_level, ranking, raw_payload, last_scraped_at, scrape_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (poi_id, source_name) DO UPDATE SET
			source_id = excluded.source_id,
			rating = excluded.rating,
			review_count = excluded.review_count,
			price_level = excluded.price_level,
			ranking = excluded.ranking,
			raw_payload = excluded.raw_payload,
			last_scraped_at = excluded.last_scraped_at,
			scrape_status = excluded.scrape_status`
}

func (SQLite) AddSpendSQL() string {
	return `INSERT INTO provider_spend (month, amount_usd, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (month) DO UPDATE SET amount_usd = amount_usd + excluded.amount_usd, updated_at = excluded.updated_at`
}

func (SQLite) Schema() []string { return sqliteSchema }
