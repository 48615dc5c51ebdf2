package criteria

import (
	"context"
	"testing"

	"poi-tiering/internal/models"
	"poi-tiering/pkg/config"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
func n(v int64) *int64     { return &v }

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		c    Criteria
	}{
		{"negative reviews", Criteria{MinReviews: -1, MaxRating: 5}},
		{"min above max", Criteria{MinRating: 4.5, MaxRating: 4.0}},
		{"max above five", Criteria{MaxRating: 6}},
		{"price level out of range", Criteria{MaxRating: 5, PriceLevels: []int{5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(); err == nil {
				t.Error("expected validation error")
			}
			if _, err := NewFilter(tt.c, nil); err == nil {
				t.Error("NewFilter accepted invalid criteria")
			}
		})
	}
}

func TestFilterApply(t *testing.T) {
	flt, err := NewFilter(Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	cands := []models.Candidate{
		{Name: "keep", ReviewCount: n(50), Rating: f(4.2), PriceLevel: i(2)},
		{Name: "few reviews", ReviewCount: n(3), Rating: f(4.8)},
		{Name: "low rating", ReviewCount: n(500), Rating: f(3.1)},
		{Name: "free entry", ReviewCount: n(500), PriceLevel: i(0)},
		{Name: "no metrics"},
	}
	kept, rejected := flt.Apply(context.Background(), cands)

	if len(kept) != 2 || kept[0].Name != "keep" || kept[1].Name != "no metrics" {
		t.Errorf("kept = %+v", kept)
	}
	wantRules := map[string]string{"few reviews": "min_reviews", "low rating": "rating", "free entry": "price_level"}
	if len(rejected) != len(wantRules) {
		t.Fatalf("rejected = %+v", rejected)
	}
	for _, r := range rejected {
		if wantRules[r.Candidate.Name] != r.Rule {
			t.Errorf("%q rejected by %q, want %q", r.Candidate.Name, r.Rule, wantRules[r.Candidate.Name])
		}
	}
}

func TestWithProfile(t *testing.T) {
	min := int64(100)
	c := Default().WithProfile(&config.CriteriaProfile{MinReviews: &min, PriceLevels: []int{0, 1}})
	if c.MinReviews != 100 || len(c.PriceLevels) != 2 || c.MinRating != 3.5 {
		t.Errorf("WithProfile = %+v", c)
	}
	if got := Default().WithProfile(nil); got.MinReviews != 10 {
		t.Errorf("nil profile changed criteria: %+v", got)
	}
}
