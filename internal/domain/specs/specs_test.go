package specs

import (
	"context"
	"testing"

	"poi-tiering/internal/models"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }
func ptrN(v int64) *int64     { return &v }

func TestCandidateSpecs(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		spec Specification[models.Candidate]
		c    models.Candidate
		want bool
	}{
		{"reviews above min", HasMinReviews(10), models.Candidate{ReviewCount: ptrN(10)}, true},
		{"reviews below min", HasMinReviews(10), models.Candidate{ReviewCount: ptrN(9)}, false},
		{"reviews missing", HasMinReviews(10), models.Candidate{}, true},
		{"rating inside", RatingWithin(3.5, 5), models.Candidate{Rating: ptrF(3.5)}, true},
		{"rating below", RatingWithin(3.5, 5), models.Candidate{Rating: ptrF(3.49)}, false},
		{"rating above", RatingWithin(3.5, 4.5), models.Candidate{Rating: ptrF(4.6)}, false},
		{"rating missing", RatingWithin(3.5, 5), models.Candidate{}, true},
		{"price allowed", PriceLevelIn([]int{1, 2}), models.Candidate{PriceLevel: ptrI(2)}, true},
		{"price not allowed", PriceLevelIn([]int{1, 2}), models.Candidate{PriceLevel: ptrI(4)}, false},
		{"price missing", PriceLevelIn([]int{1}), models.Candidate{}, true},
		{"empty price set", PriceLevelIn(nil), models.Candidate{PriceLevel: ptrI(0)}, true},
		{"blank name", HasName(), models.Candidate{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.IsSatisfiedBy(ctx, tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComposition(t *testing.T) {
	ctx := context.Background()
	yes := New(func(context.Context, int) bool { return true })
	no := New(func(context.Context, int) bool { return false })

	if !yes.And(yes).IsSatisfiedBy(ctx, 0) || yes.And(no).IsSatisfiedBy(ctx, 0) {
		t.Error("And")
	}
	if !no.Or(yes).IsSatisfiedBy(ctx, 0) || no.Or(no).IsSatisfiedBy(ctx, 0) {
		t.Error("Or")
	}
	if no.Not().IsSatisfiedBy(ctx, 0) != true {
		t.Error("Not")
	}
	if !All[int]().IsSatisfiedBy(ctx, 0) || All(yes, no).IsSatisfiedBy(ctx, 0) {
		t.Error("All")
	}
}

func TestCancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if HasMinReviews(0).IsSatisfiedBy(ctx, models.Candidate{}) {
		t.Error("cancelled context should not satisfy")
	}
}

func TestFirstFailing(t *testing.T) {
	rules := []Rule[models.Candidate]{
		{Name: "min_reviews", Spec: HasMinReviews(10)},
		{Name: "rating", Spec: RatingWithin(3.5, 5)},
	}
	c := models.Candidate{ReviewCount: ptrN(50), Rating: ptrF(2.0)}
	name, failed := FirstFailing(context.Background(), rules, c)
	if !failed || name != "rating" {
		t.Errorf("FirstFailing = %q, %v", name, failed)
	}
	if _, failed := FirstFailing(context.Background(), rules, models.Candidate{}); failed {
		t.Error("empty candidate should pass every rule")
	}
}
