package specs

import (
	"context"

	"poi-tiering/internal/models"
)

// A candidate missing the field a spec looks at passes that spec.

// HasMinReviews requires at least min reviews.
func HasMinReviews(min int64) Specification[models.Candidate] {
	return New(func(ctx context.Context, c models.Candidate) bool {
		if ctx.Err() != nil {
			return false
		}
		return c.ReviewCount == nil || *c.ReviewCount >= min
	})
}

// RatingWithin requires min <= rating <= max.
func RatingWithin(min, max float64) Specification[models.Candidate] {
	return New(func(ctx context.Context, c models.Candidate) bool {
		if ctx.Err() != nil {
			return false
		}
		return c.Rating == nil || (*c.Rating >= min && *c.Rating <= max)
	})
}

// PriceLevelIn requires the price level to be one of levels. An empty
// set accepts every level.
func PriceLevelIn(levels []int) Specification[models.Candidate] {
	allowed := make(map[int]struct{}, len(levels))
	for _, l := range levels {
		allowed[l] = struct{}{}
	}
	return New(func(ctx context.Context, c models.Candidate) bool {
		if ctx.Err() != nil {
			return false
		}
		if c.PriceLevel == nil || len(allowed) == 0 {
			return true
		}
		_, ok := allowed[*c.PriceLevel]
		return ok
	})
}

// HasName rejects candidates with a blank name.
func HasName() Specification[models.Candidate] {
	return New(func(ctx context.Context, c models.Candidate) bool {
		return ctx.Err() == nil && c.Name != ""
	})
}
