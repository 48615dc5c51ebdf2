package classification

import (
	"math"
	"time"

	"poi-tiering/internal/constants"
	"poi-tiering/internal/models"
)

// Config holds the POI score formula. Each normaliser maps its input onto
// 0-10 before weighting.
type Config struct {
	ReviewsPerPoint  float64
	RatingScale      float64
	BookingsPerPoint float64

	ReviewsWeight   float64
	RatingWeight    float64
	RelevanceWeight float64
	BookingsWeight  float64

	Tier1Min float64
	Tier2Min float64
	Tier3Min float64

	// BookingWindow is how far back booking frequency is counted.
	BookingWindow     time.Duration
	DefaultBatchLimit int
}

func DefaultClassificationConfig() Config {
	return Config{
		ReviewsPerPoint:   100,
		RatingScale:       5,
		BookingsPerPoint:  10,
		ReviewsWeight:     0.3,
		RatingWeight:      0.2,
		RelevanceWeight:   0.3,
		BookingsWeight:    0.2,
		Tier1Min:          constants.Tier1MinScore,
		Tier2Min:          constants.Tier2MinScore,
		Tier3Min:          constants.Tier3MinScore,
		BookingWindow:     30 * 24 * time.Hour,
		DefaultBatchLimit: constants.SchedulerBatchLimitDefault,
	}
}

// RawScore computes the POI score clamped to 0-10, without rounding.
func (c Config) RawScore(reviewCount int64, rating, relevance float64, bookings int64) float64 {
	nr := math.Min(float64(reviewCount)/c.ReviewsPerPoint, constants.ScoreMax)
	nrat := rating / c.RatingScale * constants.ScoreMax
	nb := math.Min(float64(bookings)/c.BookingsPerPoint, constants.ScoreMax)
	raw := nr*c.ReviewsWeight + nrat*c.RatingWeight + relevance*c.RelevanceWeight + nb*c.BookingsWeight
	return math.Max(constants.ScoreMin, math.Min(constants.ScoreMax, raw))
}

// Score is RawScore rounded to two decimals, the value stored as poi_score.
func (c Config) Score(reviewCount int64, rating, relevance float64, bookings int64) float64 {
	return round2(c.RawScore(reviewCount, rating, relevance, bookings))
}

// Evaluate returns the stored score and the tier. The tier is taken from
// the unrounded score so rounding never moves a POI across a threshold.
func (c Config) Evaluate(reviewCount int64, rating, relevance float64, bookings int64) (float64, models.Tier) {
	raw := c.RawScore(reviewCount, rating, relevance, bookings)
	return round2(raw), c.TierFor(raw)
}

// tierEpsilon absorbs float noise in the weighted sum, e.g. a score that
// should be exactly 7.0 landing on 6.999999999999999.
const tierEpsilon = 1e-9

// TierFor maps a score to its tier using inclusive lower bounds.
func (c Config) TierFor(score float64) models.Tier {
	switch {
	case score >= c.Tier1Min-tierEpsilon:
		return models.Tier1
	case score >= c.Tier2Min-tierEpsilon:
		return models.Tier2
	case score >= c.Tier3Min-tierEpsilon:
		return models.Tier3
	default:
		return models.Tier4
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
