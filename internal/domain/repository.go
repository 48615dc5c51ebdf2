package domain

import (
	"context"
	"time"

	"poi-tiering/internal/models"
)

// POIRepository defines read access to POIs and their derived rows outside
// of a transaction.
type POIRepository interface {
	GetPOIByIDCtx(ctx context.Context, id int64) (*models.POI, error)
	GetPOIByExternalIDCtx(ctx context.Context, externalID string) (*models.POI, error)
	ListPOIsDueForUpdateCtx(ctx context.Context, tier models.Tier, now time.Time, limit int) ([]models.POI, error)
	CountPOIsByTierCtx(ctx context.Context) ([]models.TierCount, error)
	ListDataSourcesCtx(ctx context.Context, poiID int64) ([]models.POIDataSource, error)
	ListScoreHistoryCtx(ctx context.Context, poiID int64, limit int) ([]models.POIScoreHistory, error)
}

// DiscoveryRunRepository persists discovery run audit records. Runs are
// written outside the ingestion transaction so a failed batch still leaves
// a trace.
type DiscoveryRunRepository interface {
	CreateDiscoveryRunCtx(ctx context.Context, run *models.DiscoveryRun) error
	UpdateDiscoveryRunCtx(ctx context.Context, run *models.DiscoveryRun) error
	GetDiscoveryRunCtx(ctx context.Context, id int64) (*models.DiscoveryRun, error)
}

// SpendRepository tracks provider spend per calendar month ("2006-01").
type SpendRepository interface {
	GetMonthlySpendCtx(ctx context.Context, month string) (float64, error)
	AddMonthlySpendCtx(ctx context.Context, month string, amount float64) error
}

// Repository aggregates the repos commonly required by services.
type Repository interface {
	POIRepository
	DiscoveryRunRepository
	SpendRepository
}

// BookingCounter reports how many bookings a POI received since a point in
// time. It is backed by the ticketing system; a nil BookingCounter leaves
// the stored booking frequency untouched.
type BookingCounter interface {
	CountBookings(ctx context.Context, poiID int64, since time.Time) (int64, error)
}
