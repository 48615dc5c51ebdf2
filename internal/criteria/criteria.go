package criteria

import (
	"context"

	"poi-tiering/internal/domain/specs"
	"poi-tiering/internal/models"
	"poi-tiering/pkg/config"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/logging"
)

// Criteria are the quality gates a discovered candidate must pass before
// it is persisted.
type Criteria struct {
	MinReviews  int64   `json:"min_reviews" validate:"gte=0"`
	MinRating   float64 `json:"min_rating" validate:"gte=0,lte=5"`
	MaxRating   float64 `json:"max_rating" validate:"gte=0,lte=5,gtefield=MinRating"`
	PriceLevels []int   `json:"price_levels" validate:"omitempty,dive,gte=0,lte=4"`
}

func Default() Criteria {
	return Criteria{
		MinReviews:  10,
		MinRating:   3.5,
		MaxRating:   5.0,
		PriceLevels: []int{1, 2, 3, 4},
	}
}

func (c Criteria) Validate() error {
	if err := config.GetValidator().Struct(c); err != nil {
		return errs.NewValidation("criteria.Validate", "invalid criteria", err)
	}
	return nil
}

// WithProfile applies the overrides from a scoring profile.
func (c Criteria) WithProfile(p *config.CriteriaProfile) Criteria {
	if p == nil {
		return c
	}
	if p.MinReviews != nil {
		c.MinReviews = *p.MinReviews
	}
	if p.MinRating != nil {
		c.MinRating = *p.MinRating
	}
	if p.MaxRating != nil {
		c.MaxRating = *p.MaxRating
	}
	if p.PriceLevels != nil {
		c.PriceLevels = append([]int(nil), p.PriceLevels...)
	}
	return c
}

// Rejection records why a candidate was dropped.
type Rejection struct {
	Candidate models.Candidate
	Rule      string
}

// Filter applies Criteria to candidates. It is pure: no I/O, no state.
type Filter struct {
	criteria Criteria
	rules    []specs.Rule[models.Candidate]
	log      *logging.ComponentLogger
}

func NewFilter(c Criteria, log *logging.Logger) (*Filter, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Filter{
		criteria: c,
		rules: []specs.Rule[models.Candidate]{
			{Name: "name", Spec: specs.HasName()},
			{Name: "min_reviews", Spec: specs.HasMinReviews(c.MinReviews)},
			{Name: "rating", Spec: specs.RatingWithin(c.MinRating, c.MaxRating)},
			{Name: "price_level", Spec: specs.PriceLevelIn(c.PriceLevels)},
		},
		log: log.WithComponent("criteria"),
	}, nil
}

func (f *Filter) Criteria() Criteria { return f.criteria }

// Check reports whether c passes, and if not, the first failing rule.
func (f *Filter) Check(ctx context.Context, c models.Candidate) (bool, string) {
	rule, failed := specs.FirstFailing(ctx, f.rules, c)
	return !failed, rule
}

// Apply splits candidates into kept and rejected, preserving order.
func (f *Filter) Apply(ctx context.Context, candidates []models.Candidate) ([]models.Candidate, []Rejection) {
	kept := make([]models.Candidate, 0, len(candidates))
	var rejected []Rejection
	for _, c := range candidates {
		if ok, rule := f.Check(ctx, c); !ok {
			rejected = append(rejected, Rejection{Candidate: c, Rule: rule})
			f.log.Debug(ctx, "candidate rejected",
				logging.String("name", c.Name),
				logging.String("source", c.Source),
				logging.String("rule", rule))
			continue
		}
		kept = append(kept, c)
	}
	return kept, rejected
}
