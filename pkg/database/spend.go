package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	errs "poi-tiering/pkg/errors"
)

// GetMonthlySpendCtx returns the recorded provider spend for month
// ("2006-01"), or 0 when nothing has been recorded.
func (db *DB) GetMonthlySpendCtx(ctx context.Context, month string) (float64, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var amount float64
	err := db.conn.QueryRowContext(ctx, `SELECT amount_usd FROM provider_spend WHERE month = ?`, month).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errs.NewDB("database.GetMonthlySpendCtx", "query", err)
	}
	return amount, nil
}

// AddMonthlySpendCtx adds amount to the month's running total.
func (db *DB) AddMonthlySpendCtx(ctx context.Context, month string, amount float64) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, db.dialect.AddSpendSQL(), month, amount, dbTime(time.Now())); err != nil {
		return wrapWrite("database.AddMonthlySpendCtx", "upsert spend", err)
	}
	return nil
}
