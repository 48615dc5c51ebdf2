package domain

import (
	"context"

	"poi-tiering/internal/models"
)

// UnitOfWork coordinates a set of repository operations within a single
// database transaction. Every write in the ingestion and classification
// pipeline goes through one.
//
// Typical usage:
//
//	uow, err := factory.Begin(ctx)
//	if err != nil { ... }
//	defer uow.Rollback()
//	poi, err := uow.LockPOICtx(ctx, id)
//	...
//	if err := uow.Commit(); err != nil { ... }
//
// Rollback after Commit is a no-op, so the deferred call is always safe.
type UnitOfWork interface {
	Commit() error
	Rollback() error

	// LockPOICtx reads a POI and holds a row-level update lock on it until
	// the transaction ends.
	LockPOICtx(ctx context.Context, id int64) (*models.POI, error)
	GetPOIByExternalIDCtx(ctx context.Context, externalID string) (*models.POI, error)
	CreatePOICtx(ctx context.Context, poi *models.POI) (int64, error)
	UpdatePOIDetailsCtx(ctx context.Context, poi *models.POI) error
	UpdatePOIClassificationCtx(ctx context.Context, poi *models.POI) error
	InsertScoreHistoryCtx(ctx context.Context, h *models.POIScoreHistory) error
	UpsertDataSourceCtx(ctx context.Context, ds *models.POIDataSource) error
}

// UnitOfWorkFactory starts new UnitOfWork instances.
// A returned UnitOfWork is already begun.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
