package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
)

func (db *DB) CreateDiscoveryRunCtx(ctx context.Context, run *models.DiscoveryRun) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	cols, err := encodeRunJSON(run)
	if err != nil {
		return errs.NewDB("database.CreateDiscoveryRunCtx", "encode run", err)
	}
	res, err := db.conn.ExecContext(ctx, `INSERT INTO discovery_runs
		(run_type, destination, categories, sources, criteria, status, progress,
		 found, created, updated, skipped, failed, errors, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunType, run.Destination, cols.categories, cols.sources, cols.criteria, string(run.Status), cols.progress,
		run.Found, run.Created, run.Updated, run.Skipped, run.Failed, cols.errors,
		dbTime(run.StartedAt), nullTime(run.CompletedAt))
	if err != nil {
		return wrapWrite("database.CreateDiscoveryRunCtx", "insert run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errs.NewDB("database.CreateDiscoveryRunCtx", "last insert id", err)
	}
	run.ID = id
	return nil
}

func (db *DB) UpdateDiscoveryRunCtx(ctx context.Context, run *models.DiscoveryRun) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	cols, err := encodeRunJSON(run)
	if err != nil {
		return errs.NewDB("database.UpdateDiscoveryRunCtx", "encode run", err)
	}
	res, err := db.conn.ExecContext(ctx, `UPDATE discovery_runs SET
		status = ?, progress = ?, found = ?, created = ?, updated = ?, skipped = ?, failed = ?,
		errors = ?, completed_at = ?
		WHERE id = ?`,
		string(run.Status), cols.progress, run.Found, run.Created, run.Updated, run.Skipped, run.Failed,
		cols.errors, nullTime(run.CompletedAt), run.ID)
	if err != nil {
		return wrapWrite("database.UpdateDiscoveryRunCtx", "update run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.NewDB("database.UpdateDiscoveryRunCtx", "rows affected", err)
	}
	if n == 0 {
		return errs.NewDB("database.UpdateDiscoveryRunCtx", fmt.Sprintf("run %d", run.ID), errs.ErrNotFound)
	}
	return nil
}

func (db *DB) GetDiscoveryRunCtx(ctx context.Context, id int64) (*models.DiscoveryRun, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var (
		run                                    models.DiscoveryRun
		categories, sources, progress, runErrs string
		criteria                               sql.NullString
		status                                 string
		completed                              sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `SELECT id, run_type, destination, categories, sources, criteria,
		status, progress, found, created, updated, skipped, failed, errors, started_at, completed_at
		FROM discovery_runs WHERE id = ?`, id).Scan(
		&run.ID, &run.RunType, &run.Destination, &categories, &sources, &criteria,
		&status, &progress, &run.Found, &run.Created, &run.Updated, &run.Skipped, &run.Failed,
		&runErrs, &run.StartedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewDB("database.GetDiscoveryRunCtx", fmt.Sprintf("run %d", id), errs.ErrNotFound)
	}
	if err != nil {
		return nil, errs.NewDB("database.GetDiscoveryRunCtx", "scan run", err)
	}

	run.Status = models.RunStatus(status)
	run.CompletedAt = timePtr(completed)
	if criteria.Valid {
		run.Criteria = []byte(criteria.String)
	}
	for _, dec := range []struct {
		raw string
		dst any
	}{
		{categories, &run.Categories},
		{sources, &run.Sources},
		{progress, &run.Progress},
		{runErrs, &run.Errors},
	} {
		if dec.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(dec.raw), dec.dst); err != nil {
			return nil, errs.NewDB("database.GetDiscoveryRunCtx", "decode run", err)
		}
	}
	return &run, nil
}

type runJSON struct {
	categories, sources, progress, errors string
	criteria                              any
}

func encodeRunJSON(run *models.DiscoveryRun) (runJSON, error) {
	var out runJSON
	enc := func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}
	var err error
	categories := run.Categories
	if categories == nil {
		categories = []string{}
	}
	if out.categories, err = enc(categories); err != nil {
		return out, err
	}
	sources := run.Sources
	if sources == nil {
		sources = []string{}
	}
	if out.sources, err = enc(sources); err != nil {
		return out, err
	}
	progress := run.Progress
	if progress == nil {
		progress = map[string]models.CategoryProgress{}
	}
	if out.progress, err = enc(progress); err != nil {
		return out, err
	}
	runErrs := run.Errors
	if runErrs == nil {
		runErrs = []models.RunError{}
	}
	if out.errors, err = enc(runErrs); err != nil {
		return out, err
	}
	if len(run.Criteria) > 0 {
		out.criteria = string(run.Criteria)
	}
	return out, nil
}
