package repository

import (
	"context"
	"time"

	"poi-tiering/internal/domain"
	"poi-tiering/internal/models"
	"poi-tiering/pkg/database"
)

// SQLRepository is a thin adapter over pkg/database.DB to satisfy domain repositories.
// It keeps business logic decoupled from the SQL layer.
type SQLRepository struct {
	db *database.DB
}

func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Ensure interface compliance at compile time
var _ domain.Repository = (*SQLRepository)(nil)

// POIRepository methods
func (r *SQLRepository) GetPOIByIDCtx(ctx context.Context, id int64) (*models.POI, error) {
	return r.db.GetPOIByIDCtx(ctx, id)
}

func (r *SQLRepository) GetPOIByExternalIDCtx(ctx context.Context, externalID string) (*models.POI, error) {
	return r.db.GetPOIByExternalIDCtx(ctx, externalID)
}

func (r *SQLRepository) ListPOIsDueForUpdateCtx(ctx context.Context, tier models.Tier, now time.Time, limit int) ([]models.POI, error) {
	return r.db.ListPOIsDueForUpdateCtx(ctx, tier, now, limit)
}

func (r *SQLRepository) CountPOIsByTierCtx(ctx context.Context) ([]models.TierCount, error) {
	return r.db.CountPOIsByTierCtx(ctx)
}

func (r *SQLRepository) ListDataSourcesCtx(ctx context.Context, poiID int64) ([]models.POIDataSource, error) {
	return r.db.ListDataSourcesCtx(ctx, poiID)
}

func (r *SQLRepository) ListScoreHistoryCtx(ctx context.Context, poiID int64, limit int) ([]models.POIScoreHistory, error) {
	return r.db.ListScoreHistoryCtx(ctx, poiID, limit)
}

// DiscoveryRunRepository methods
func (r *SQLRepository) CreateDiscoveryRunCtx(ctx context.Context, run *models.DiscoveryRun) error {
	return r.db.CreateDiscoveryRunCtx(ctx, run)
}

func (r *SQLRepository) UpdateDiscoveryRunCtx(ctx context.Context, run *models.DiscoveryRun) error {
	return r.db.UpdateDiscoveryRunCtx(ctx, run)
}

func (r *SQLRepository) GetDiscoveryRunCtx(ctx context.Context, id int64) (*models.DiscoveryRun, error) {
	return r.db.GetDiscoveryRunCtx(ctx, id)
}

// SpendRepository methods
func (r *SQLRepository) GetMonthlySpendCtx(ctx context.Context, month string) (float64, error) {
	return r.db.GetMonthlySpendCtx(ctx, month)
}

func (r *SQLRepository) AddMonthlySpendCtx(ctx context.Context, month string, amount float64) error {
	return r.db.AddMonthlySpendCtx(ctx, month, amount)
}
