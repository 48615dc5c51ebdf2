package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	errs "poi-tiering/pkg/errors"
)

type memSpend struct {
	mu    sync.Mutex
	spend map[string]float64
}

func (m *memSpend) GetMonthlySpendCtx(_ context.Context, month string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spend[month], nil
}

func (m *memSpend) AddMonthlySpendCtx(_ context.Context, month string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spend == nil {
		m.spend = map[string]float64{}
	}
	m.spend[month] += amount
	return nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestChargeWithinLimit(t *testing.T) {
	g := NewGuard(1.0, nil, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := g.Charge(ctx, "google_places", 0.25); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}
	if got := g.Spent(ctx); got != 0.75 {
		t.Errorf("Spent = %v, want 0.75", got)
	}
	if got := g.Remaining(ctx); got != 0.25 {
		t.Errorf("Remaining = %v, want 0.25", got)
	}
}

func TestChargeExceedsLimit(t *testing.T) {
	g := NewGuard(0.5, nil, nil)
	ctx := context.Background()
	if err := g.Charge(ctx, "google_places", 0.4); err != nil {
		t.Fatal(err)
	}
	err := g.Charge(ctx, "google_places", 0.2)
	if !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if got := g.Spent(ctx); got != 0.4 {
		t.Errorf("rejected charge was counted: Spent = %v", got)
	}

	if err := g.Charge(WithForce(ctx), "google_places", 0.2); err != nil {
		t.Fatalf("forced charge: %v", err)
	}
	if got := g.Spent(ctx); got < 0.59 || got > 0.61 {
		t.Errorf("Spent after forced charge = %v, want 0.6", got)
	}
	if got := g.Remaining(ctx); got != 0 {
		t.Errorf("Remaining = %v, want 0", got)
	}
}

func TestFreeCallsNeverBlocked(t *testing.T) {
	g := NewGuard(0.01, nil, nil)
	for i := 0; i < 10; i++ {
		if err := g.Charge(context.Background(), "free", 0); err != nil {
			t.Fatal(err)
		}
	}
}

func TestUnlimited(t *testing.T) {
	g := NewGuard(0, nil, nil)
	if err := g.Charge(context.Background(), "x", 1000); err != nil {
		t.Fatal(err)
	}
	if got := g.Remaining(context.Background()); got != -1 {
		t.Errorf("Remaining = %v, want -1", got)
	}
}

func TestMonthRollover(t *testing.T) {
	g := NewGuard(1.0, nil, nil)
	g.SetClock(fixedClock(time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC)))
	ctx := context.Background()
	if err := g.Charge(ctx, "x", 0.9); err != nil {
		t.Fatal(err)
	}
	if err := g.Charge(ctx, "x", 0.5); !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}

	g.SetClock(fixedClock(time.Date(2026, 10, 1, 0, 5, 0, 0, time.UTC)))
	if err := g.Charge(ctx, "x", 0.5); err != nil {
		t.Fatalf("new month should reset spend: %v", err)
	}
}

func TestSpendPersistedAndSeeded(t *testing.T) {
	repo := &memSpend{spend: map[string]float64{"2026-10": 0.7}}
	now := fixedClock(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	g := NewGuard(1.0, repo, nil)
	g.SetClock(now)
	ctx := context.Background()
	if err := g.Charge(ctx, "x", 0.2); err != nil {
		t.Fatal(err)
	}
	if err := g.Charge(ctx, "x", 0.2); !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Fatalf("stored spend not seeded: err = %v", err)
	}
	g.Close()
	g.Close()

	got, _ := repo.GetMonthlySpendCtx(ctx, "2026-10")
	if got < 0.89 || got > 0.91 {
		t.Errorf("persisted spend = %v, want 0.9", got)
	}
}

func TestMonthKey(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	if got := MonthKey(time.Date(2026, 11, 1, 1, 0, 0, 0, loc)); got != "2026-10" {
		t.Errorf("MonthKey = %q, want 2026-10", got)
	}
}
