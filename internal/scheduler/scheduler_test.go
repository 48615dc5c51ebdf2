package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"poi-tiering/internal/classification"
	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
)

type fakeEngine struct {
	mu     sync.Mutex
	due    map[models.Tier][]models.POI
	dueErr error
	fail   map[int64]error
	calls  [][]int64
	opts   []classification.ClassifyOptions
}

func (f *fakeEngine) GetPOIsForUpdate(_ context.Context, tier models.Tier, limit int) ([]models.POI, error) {
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	out := f.due[tier]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEngine) BatchClassify(_ context.Context, ids []int64, opts classification.ClassifyOptions) *classification.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ids)
	f.opts = append(f.opts, opts)
	out := &classification.BatchResult{Failed: map[int64]error{}}
	for _, id := range ids {
		if err := f.fail[id]; err != nil {
			out.Failed[id] = err
			continue
		}
		out.Results = append(out.Results, &classification.Result{POIID: id, TierChanged: id%2 == 0})
	}
	return out
}

func TestNewRejectsBadSpec(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.Specs[models.Tier2] = "every day"
	if _, err := New(cfg, &fakeEngine{}, nil); !errs.Is(err, errs.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestNewSkipsEmptySpecs(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.Specs[models.Tier4] = ""
	s, err := New(cfg, &fakeEngine{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop(context.Background())
	next := s.Next()
	if len(next) != 3 {
		t.Fatalf("scheduled tiers = %d, want 3", len(next))
	}
	if _, ok := next[models.Tier4]; ok {
		t.Error("tier 4 should not be scheduled")
	}
	if next[models.Tier1].IsZero() || next[models.Tier1].After(time.Now().Add(time.Hour+time.Minute)) {
		t.Errorf("tier 1 next run = %v, want within the hour", next[models.Tier1])
	}
}

func TestRunTier(t *testing.T) {
	eng := &fakeEngine{
		due: map[models.Tier][]models.POI{
			models.Tier2: {{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
		},
		fail: map[int64]error{3: errors.New("lock timeout")},
	}
	cfg := DefaultSchedulerConfig()
	cfg.BatchLimit = 10
	cfg.Seasonal = true
	s, err := New(cfg, eng, nil)
	if err != nil {
		t.Fatal(err)
	}

	rep, err := s.RunTier(context.Background(), models.Tier2)
	if err != nil {
		t.Fatalf("RunTier: %v", err)
	}
	if rep.Due != 4 || rep.Refreshed != 3 || rep.Changed != 2 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Failed[3] != "lock timeout" {
		t.Errorf("failed = %v", rep.Failed)
	}
	o := eng.opts[0]
	if !o.Aggregate || !o.RefreshRelevance || !o.RefreshBookings || !o.Seasonal || o.UoW != nil {
		t.Errorf("options = %+v", o)
	}
}

func TestRunTierNothingDue(t *testing.T) {
	eng := &fakeEngine{}
	s, _ := New(DefaultSchedulerConfig(), eng, nil)
	rep, err := s.RunTier(context.Background(), models.Tier1)
	if err != nil || rep.Due != 0 {
		t.Fatalf("rep = %+v err = %v", rep, err)
	}
	if len(eng.calls) != 0 {
		t.Error("BatchClassify called with nothing due")
	}
}

func TestRunTierErrors(t *testing.T) {
	s, _ := New(DefaultSchedulerConfig(), &fakeEngine{dueErr: errors.New("db down")}, nil)
	if _, err := s.RunTier(context.Background(), models.Tier1); err == nil {
		t.Error("expected due query error")
	}

	eng := &fakeEngine{
		due:  map[models.Tier][]models.POI{models.Tier3: {{ID: 5}}},
		fail: map[int64]error{5: errors.New("boom")},
	}
	s, _ = New(DefaultSchedulerConfig(), eng, nil)
	if _, err := s.RunTier(context.Background(), models.Tier3); err == nil {
		t.Error("expected error when every refresh fails")
	}
}
