package repository

import (
	"context"
	"database/sql"
	"fmt"

	"poi-tiering/internal/domain"
	"poi-tiering/internal/models"
	"poi-tiering/pkg/database"
	errs "poi-tiering/pkg/errors"
)

// SQLUnitOfWorkFactory starts SQL-backed UnitOfWork transactions at the
// dialect's isolation level (READ COMMITTED on MySQL).
type SQLUnitOfWorkFactory struct {
	db *database.DB
}

func NewSQLUnitOfWorkFactory(db *database.DB) *SQLUnitOfWorkFactory {
	return &SQLUnitOfWorkFactory{db: db}
}

// Ensure interface conformance
var _ domain.UnitOfWorkFactory = (*SQLUnitOfWorkFactory)(nil)

func (f *SQLUnitOfWorkFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := f.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &SQLUnitOfWork{db: f.db, tx: tx}, nil
}

// SQLUnitOfWork coordinates operations using a single *sql.Tx.
type SQLUnitOfWork struct {
	db *database.DB
	tx *sql.Tx
	// guards against double commit/rollback and use after close
	closed bool
}

// compile-time checks: SQLUnitOfWork implements UnitOfWork and repo methods
var _ domain.UnitOfWork = (*SQLUnitOfWork)(nil)

func (u *SQLUnitOfWork) Commit() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := u.tx.Commit(); err != nil {
		return errs.NewDB("uow.Commit", "commit", err)
	}
	return nil
}

func (u *SQLUnitOfWork) Rollback() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := u.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errs.NewDB("uow.Rollback", "rollback", err)
	}
	return nil
}

func (u *SQLUnitOfWork) active(op string) error {
	if u.closed || u.tx == nil {
		return errs.NewDB("uow."+op, fmt.Sprintf("uow: no active transaction for %s", op), sql.ErrTxDone)
	}
	return nil
}

func (u *SQLUnitOfWork) LockPOICtx(ctx context.Context, id int64) (*models.POI, error) {
	if err := u.active("LockPOICtx"); err != nil {
		return nil, err
	}
	return u.db.LockPOITx(ctx, u.tx, id)
}

func (u *SQLUnitOfWork) GetPOIByExternalIDCtx(ctx context.Context, externalID string) (*models.POI, error) {
	if err := u.active("GetPOIByExternalIDCtx"); err != nil {
		return nil, err
	}
	return u.db.GetPOIByExternalIDTx(ctx, u.tx, externalID)
}

func (u *SQLUnitOfWork) CreatePOICtx(ctx context.Context, poi *models.POI) (int64, error) {
	if err := u.active("CreatePOICtx"); err != nil {
		return 0, err
	}
	return u.db.CreatePOITx(ctx, u.tx, poi)
}

func (u *SQLUnitOfWork) UpdatePOIDetailsCtx(ctx context.Context, poi *models.POI) error {
	if err := u.active("UpdatePOIDetailsCtx"); err != nil {
		return err
	}
	return u.db.UpdatePOIDetailsTx(ctx, u.tx, poi)
}

func (u *SQLUnitOfWork) UpdatePOIClassificationCtx(ctx context.Context, poi *models.POI) error {
	if err := u.active("UpdatePOIClassificationCtx"); err != nil {
		return err
	}
	return u.db.UpdatePOIClassificationTx(ctx, u.tx, poi)
}

func (u *SQLUnitOfWork) InsertScoreHistoryCtx(ctx context.Context, h *models.POIScoreHistory) error {
	if err := u.active("InsertScoreHistoryCtx"); err != nil {
		return err
	}
	return u.db.InsertScoreHistoryTx(ctx, u.tx, h)
}

func (u *SQLUnitOfWork) UpsertDataSourceCtx(ctx context.Context, ds *models.POIDataSource) error {
	if err := u.active("UpsertDataSourceCtx"); err != nil {
		return err
	}
	return u.db.UpsertDataSourceTx(ctx, u.tx, ds)
}
