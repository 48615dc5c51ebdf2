package database

import (
	"context"
	"database/sql"
	"time"

	"poi-tiering/internal/constants"
	"poi-tiering/pkg/config"
	errs "poi-tiering/pkg/errors"
)

type DB struct {
	conn         *sql.DB
	dialect      Dialect
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Options tunes the connection pool and per-statement timeouts. Zero
// values fall back to the defaults in internal/constants.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Open connects to dsn using the given dialect and verifies the
// connection with a ping.
func Open(ctx context.Context, dialect Dialect, dsn string, opts Options) (*DB, error) {
	normalized, err := dialect.NormalizeDSN(dsn)
	if err != nil {
		return nil, errs.NewValidation("database.Open", "invalid dsn", err)
	}
	conn, err := sql.Open(dialect.DriverName(), normalized)
	if err != nil {
		return nil, errs.NewDB("database.Open", "open", err)
	}

	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		conn.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	db := &DB{
		conn:         conn,
		dialect:      dialect,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	if db.readTimeout == 0 {
		db.readTimeout = constants.DBReadTimeoutDefault
	}
	if db.writeTimeout == 0 {
		db.writeTimeout = constants.DBWriteTimeoutDefault
	}

	pingCtx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, errs.NewDB("database.Open", "ping", err)
	}
	return db, nil
}

// NewWithConfig opens the database described by the application config.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*DB, error) {
	dialect, err := DialectFor(cfg.DBDialect)
	if err != nil {
		return nil, errs.NewValidation("database.NewWithConfig", "dialect", err)
	}
	return Open(ctx, dialect, cfg.DatabaseURL, Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Minute,
		ReadTimeout:     cfg.DBReadTimeout,
		WriteTimeout:    cfg.DBWriteTimeout,
	})
}

// Migrate creates any missing tables.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range db.dialect.Schema() {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return errs.NewDB("database.Migrate", "apply schema", err)
		}
	}
	return nil
}

// BeginTx starts a transaction at the dialect's isolation level.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := db.conn.BeginTx(ctx, db.dialect.TxOptions())
	if err != nil {
		return nil, errs.NewDB("database.BeginTx", "begin", err)
	}
	return tx, nil
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) Dialect() Dialect { return db.dialect }

// PingCtx checks connectivity within the read timeout.
func (db *DB) PingCtx(ctx context.Context) error {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// withReadTimeout creates a context with standard read timeout.
func (db *DB) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

// withWriteTimeout creates a context with standard write timeout.
func (db *DB) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
