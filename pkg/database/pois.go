package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
)

const poiColumns = `id, external_id, name, slug, category, address, city, country, latitude, longitude,
	phone, website, price_level, review_count, average_rating, tourist_relevance, booking_frequency,
	poi_score, tier, verified, active, last_scraped_at, next_update_at, last_classified_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPOI(r rowScanner) (*models.POI, error) {
	var (
		p                                   models.POI
		externalID                          sql.NullString
		lat, lng                            sql.NullFloat64
		priceLevel                          sql.NullInt64
		tier                                int64
		lastScraped, nextUpdate, classified sql.NullTime
	)
	err := r.Scan(&p.ID, &externalID, &p.Name, &p.Slug, &p.Category, &p.Address, &p.City, &p.Country,
		&lat, &lng, &p.Phone, &p.Website, &priceLevel, &p.ReviewCount, &p.AverageRating,
		&p.TouristRelevance, &p.BookingFrequency, &p.POIScore, &tier, &p.Verified, &p.Active,
		&lastScraped, &nextUpdate, &classified, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ExternalID = stringPtr(externalID)
	p.Lat = floatPtr(lat)
	p.Lng = floatPtr(lng)
	p.PriceLevel = intPtr(priceLevel)
	p.Tier = models.Tier(tier)
	p.LastScrapedAt = timePtr(lastScraped)
	p.NextUpdateAt = timePtr(nextUpdate)
	p.LastClassifiedAt = timePtr(classified)
	return &p, nil
}

func getPOI(ctx context.Context, q querier, op, where, lock string, args ...any) (*models.POI, error) {
	row := q.QueryRowContext(ctx, `SELECT `+poiColumns+` FROM pois WHERE `+where+lock, args...)
	p, err := scanPOI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewDB(op, fmt.Sprintf("no poi for %v", args), errs.ErrNotFound)
	}
	if err != nil {
		return nil, errs.NewDB(op, "scan poi", err)
	}
	return p, nil
}

func (db *DB) GetPOIByIDCtx(ctx context.Context, id int64) (*models.POI, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	return getPOI(ctx, db.conn, "database.GetPOIByIDCtx", "id = ?", "", id)
}

// GetPOIByExternalIDCtx returns nil, nil when no POI has that provider id.
func (db *DB) GetPOIByExternalIDCtx(ctx context.Context, externalID string) (*models.POI, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	return byExternalID(ctx, db.conn, "database.GetPOIByExternalIDCtx", externalID)
}

func (db *DB) GetPOIByExternalIDTx(ctx context.Context, tx *sql.Tx, externalID string) (*models.POI, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	return byExternalID(ctx, tx, "database.GetPOIByExternalIDTx", externalID)
}

func byExternalID(ctx context.Context, q querier, op, externalID string) (*models.POI, error) {
	p, err := getPOI(ctx, q, op, "external_id = ?", "", externalID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// LockPOITx reads a POI and, on dialects that support it, holds a row
// update lock until tx ends.
func (db *DB) LockPOITx(ctx context.Context, tx *sql.Tx, id int64) (*models.POI, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	return getPOI(ctx, tx, "database.LockPOITx", "id = ?", db.dialect.LockClause(), id)
}

func (db *DB) CreatePOITx(ctx context.Context, tx *sql.Tx, p *models.POI) (int64, error) {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	now := dbTime(time.Now())
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if !p.Tier.Valid() {
		p.Tier = models.Tier4
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO pois
		(external_id, name, slug, category, address, city, country, latitude, longitude, phone, website,
		 price_level, review_count, average_rating, tourist_relevance, booking_frequency, poi_score, tier,
		 verified, active, last_scraped_at, next_update_at, last_classified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(p.ExternalID), p.Name, p.Slug, p.Category, p.Address, p.City, p.Country,
		nullFloat(p.Lat), nullFloat(p.Lng), p.Phone, p.Website, nullInt(p.PriceLevel),
		p.ReviewCount, p.AverageRating, p.TouristRelevance, p.BookingFrequency, p.POIScore, int64(p.Tier),
		p.Verified, p.Active, nullTime(p.LastScrapedAt), nullTime(p.NextUpdateAt), nullTime(p.LastClassifiedAt),
		dbTime(p.CreatedAt), p.UpdatedAt)
	if err != nil {
		return 0, wrapWrite("database.CreatePOITx", "insert poi", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.NewDB("database.CreatePOITx", "last insert id", err)
	}
	p.ID = id
	return id, nil
}

// UpdatePOIDetailsTx writes descriptive and source-reported fields. Score,
// tier and relevance are owned by UpdatePOIClassificationTx.
func (db *DB) UpdatePOIDetailsTx(ctx context.Context, tx *sql.Tx, p *models.POI) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	p.UpdatedAt = dbTime(time.Now())
	res, err := tx.ExecContext(ctx, `UPDATE pois SET
		name = ?, category = ?, address = ?, city = ?, country = ?, latitude = ?, longitude = ?,
		phone = ?, website = ?, price_level = ?, review_count = ?, average_rating = ?,
		last_scraped_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Category, p.Address, p.City, p.Country, nullFloat(p.Lat), nullFloat(p.Lng),
		p.Phone, p.Website, nullInt(p.PriceLevel), p.ReviewCount, p.AverageRating,
		nullTime(p.LastScrapedAt), p.UpdatedAt, p.ID)
	if err != nil {
		return wrapWrite("database.UpdatePOIDetailsTx", "update poi", err)
	}
	return expectRow(res, "database.UpdatePOIDetailsTx", p.ID)
}

// UpdatePOIClassificationTx writes the outcome of a classification. Score,
// tier and next_update_at always move together.
func (db *DB) UpdatePOIClassificationTx(ctx context.Context, tx *sql.Tx, p *models.POI) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	p.UpdatedAt = dbTime(time.Now())
	res, err := tx.ExecContext(ctx, `UPDATE pois SET
		review_count = ?, average_rating = ?, tourist_relevance = ?, booking_frequency = ?,
		poi_score = ?, tier = ?, next_update_at = ?, last_classified_at = ?, last_scraped_at = ?, updated_at = ?
		WHERE id = ?`,
		p.ReviewCount, p.AverageRating, p.TouristRelevance, p.BookingFrequency,
		p.POIScore, int64(p.Tier), nullTime(p.NextUpdateAt), nullTime(p.LastClassifiedAt),
		nullTime(p.LastScrapedAt), p.UpdatedAt, p.ID)
	if err != nil {
		return wrapWrite("database.UpdatePOIClassificationTx", "update classification", err)
	}
	return expectRow(res, "database.UpdatePOIClassificationTx", p.ID)
}

func (db *DB) InsertScoreHistoryTx(ctx context.Context, tx *sql.Tx, h *models.POIScoreHistory) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	var oldTier any
	if h.OldTier != nil {
		oldTier = int64(*h.OldTier)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO poi_score_history
		(poi_id, poi_score, review_count, average_rating, tourist_relevance, booking_frequency, old_tier, new_tier, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.POIID, h.POIScore, h.ReviewCount, h.AverageRating, h.TouristRelevance, h.BookingFrequency,
		oldTier, int64(h.NewTier), dbTime(h.CalculatedAt))
	if err != nil {
		return wrapWrite("database.InsertScoreHistoryTx", "insert history", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		h.ID = id
	}
	return nil
}

func (db *DB) UpsertDataSourceTx(ctx context.Context, tx *sql.Tx, ds *models.POIDataSource) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	var raw any
	if len(ds.RawPayload) > 0 {
		raw = string(ds.RawPayload)
	}
	_, err := tx.ExecContext(ctx, db.dialect.UpsertDataSourceSQL(),
		ds.POIID, ds.SourceName, ds.SourceID, nullFloat(ds.Rating), nullInt64(ds.ReviewCount),
		nullInt(ds.PriceLevel), nullInt(ds.Ranking), raw, dbTime(ds.LastScrapedAt), string(ds.ScrapeStatus))
	if err != nil {
		return wrapWrite("database.UpsertDataSourceTx", "upsert data source", err)
	}
	return nil
}

// ListPOIsDueForUpdateCtx returns active POIs of a tier whose refresh
// deadline has passed, most overdue first. Never-classified POIs sort first.
func (db *DB) ListPOIsDueForUpdateCtx(ctx context.Context, tier models.Tier, now time.Time, limit int) ([]models.POI, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT `+poiColumns+` FROM pois
		WHERE active = ? AND tier = ? AND (next_update_at IS NULL OR next_update_at <= ?)
		ORDER BY next_update_at ASC, id ASC
		LIMIT ?`, true, int64(tier), dbTime(now), limit)
	if err != nil {
		return nil, errs.NewDB("database.ListPOIsDueForUpdateCtx", "query", err)
	}
	defer rows.Close()

	var out []models.POI
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, errs.NewDB("database.ListPOIsDueForUpdateCtx", "scan", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.ListPOIsDueForUpdateCtx", "rows", err)
	}
	return out, nil
}

func (db *DB) CountPOIsByTierCtx(ctx context.Context) ([]models.TierCount, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT tier, COUNT(*) FROM pois WHERE active = ? GROUP BY tier ORDER BY tier`, true)
	if err != nil {
		return nil, errs.NewDB("database.CountPOIsByTierCtx", "query", err)
	}
	defer rows.Close()

	var out []models.TierCount
	for rows.Next() {
		var tier, n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, errs.NewDB("database.CountPOIsByTierCtx", "scan", err)
		}
		out = append(out, models.TierCount{Tier: models.Tier(tier), Count: n})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.CountPOIsByTierCtx", "rows", err)
	}
	return out, nil
}

func (db *DB) ListDataSourcesCtx(ctx context.Context, poiID int64) ([]models.POIDataSource, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, poi_id, source_name, source_id, rating, review_count,
		price_level, ranking, raw_payload, last_scraped_at, scrape_status
		FROM poi_data_sources WHERE poi_id = ? ORDER BY source_name`, poiID)
	if err != nil {
		return nil, errs.NewDB("database.ListDataSourcesCtx", "query", err)
	}
	defer rows.Close()

	var out []models.POIDataSource
	for rows.Next() {
		var (
			ds                   models.POIDataSource
			rating               sql.NullFloat64
			reviews, price, rank sql.NullInt64
			raw                  sql.NullString
			status               string
		)
		if err := rows.Scan(&ds.ID, &ds.POIID, &ds.SourceName, &ds.SourceID, &rating, &reviews,
			&price, &rank, &raw, &ds.LastScrapedAt, &status); err != nil {
			return nil, errs.NewDB("database.ListDataSourcesCtx", "scan", err)
		}
		ds.Rating = floatPtr(rating)
		if reviews.Valid {
			v := reviews.Int64
			ds.ReviewCount = &v
		}
		ds.PriceLevel = intPtr(price)
		ds.Ranking = intPtr(rank)
		if raw.Valid {
			ds.RawPayload = []byte(raw.String)
		}
		ds.ScrapeStatus = models.ScrapeStatus(status)
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.ListDataSourcesCtx", "rows", err)
	}
	return out, nil
}

func (db *DB) ListScoreHistoryCtx(ctx context.Context, poiID int64, limit int) ([]models.POIScoreHistory, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT id, poi_id, poi_score, review_count, average_rating,
		tourist_relevance, booking_frequency, old_tier, new_tier, calculated_at
		FROM poi_score_history WHERE poi_id = ? ORDER BY calculated_at DESC, id DESC LIMIT ?`, poiID, limit)
	if err != nil {
		return nil, errs.NewDB("database.ListScoreHistoryCtx", "query", err)
	}
	defer rows.Close()

	var out []models.POIScoreHistory
	for rows.Next() {
		var (
			h       models.POIScoreHistory
			oldTier sql.NullInt64
			newTier int64
		)
		if err := rows.Scan(&h.ID, &h.POIID, &h.POIScore, &h.ReviewCount, &h.AverageRating,
			&h.TouristRelevance, &h.BookingFrequency, &oldTier, &newTier, &h.CalculatedAt); err != nil {
			return nil, errs.NewDB("database.ListScoreHistoryCtx", "scan", err)
		}
		if oldTier.Valid {
			t := models.Tier(oldTier.Int64)
			h.OldTier = &t
		}
		h.NewTier = models.Tier(newTier)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.ListScoreHistoryCtx", "rows", err)
	}
	return out, nil
}

func expectRow(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errs.NewDB(op, "rows affected", err)
	}
	if n == 0 {
		return errs.NewDB(op, fmt.Sprintf("poi %d", id), errs.ErrNotFound)
	}
	return nil
}
