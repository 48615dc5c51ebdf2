package classification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"poi-tiering/internal/aggregator"
	"poi-tiering/internal/models"
	"poi-tiering/internal/relevance"
	"poi-tiering/internal/sources"
	testutil "poi-tiering/internal/testing"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/events"
)

var fixedNow = time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

func newEngine(store *testutil.MemStore, pub *testutil.RecordingPublisher, d Deps) *Engine {
	d.UoW = store
	d.Repo = store
	d.Publisher = pub
	e := NewEngine(DefaultClassificationConfig(), d)
	e.SetClock(func() time.Time { return fixedNow })
	return e
}

func classified(p models.POI) models.POI {
	at := fixedNow.Add(-48 * time.Hour)
	p.LastClassifiedAt = &at
	p.Active = true
	if p.Tier == 0 {
		p.Tier = models.Tier4
	}
	return p
}

func TestTierBoundaries(t *testing.T) {
	cfg := DefaultClassificationConfig()
	tests := []struct {
		score float64
		want  models.Tier
	}{
		{10, models.Tier1},
		{8.5, models.Tier1},
		{8.49, models.Tier2},
		{7.0, models.Tier2},
		{6.99, models.Tier3},
		{5.0, models.Tier3},
		{4.99, models.Tier4},
		{0, models.Tier4},
	}
	for _, tt := range tests {
		if got := cfg.TierFor(tt.score); got != tt.want {
			t.Errorf("TierFor(%v) = %d, want %d", tt.score, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	cfg := DefaultClassificationConfig()
	tests := []struct {
		name      string
		reviews   int64
		rating    float64
		relevance float64
		bookings  int64
		want      float64
	}{
		{"all zero", 0, 0, 0, 0, 0},
		{"all max", 1000, 5, 10, 100, 10},
		{"normalisers cap at ten", 1 << 40, 5, 10, 1 << 40, 10},
		{"mixed", 250, 4.2, 8.2, 30, 5.49},
		{"out of range inputs clamp", 0, 50, 100, 0, 10},
		{"negative relevance clamps", 0, 0, -50, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.Score(tt.reviews, tt.rating, tt.relevance, tt.bookings)
			if got != tt.want {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 10 {
				t.Errorf("Score %v out of bounds", got)
			}
		})
	}
}

func TestEvaluateTiersOnUnroundedScore(t *testing.T) {
	cfg := DefaultClassificationConfig()
	tests := []struct {
		name      string
		reviews   int64
		rating    float64
		relevance float64
		bookings  int64
		score     float64
		tier      models.Tier
	}{
		{"exactly 8.5", 1000, 5, 10, 25, 8.5, models.Tier1},
		{"8.497 rounds up but stays tier 2", 1000, 5, 9.99, 25, 8.5, models.Tier2},
		{"exactly 7.0", 1000, 5, 5, 25, 7.0, models.Tier2},
		{"6.997 stays tier 3", 1000, 5, 4.99, 25, 7.0, models.Tier3},
		{"exactly 5.0", 0, 5, 10, 0, 5.0, models.Tier3},
		{"4.997 stays tier 4", 0, 5, 9.99, 0, 5.0, models.Tier4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, tier := cfg.Evaluate(tt.reviews, tt.rating, tt.relevance, tt.bookings)
			if score != tt.score || tier != tt.tier {
				t.Errorf("Evaluate = %v tier %d, want %v tier %d", score, tier, tt.score, tt.tier)
			}
		})
	}
}

func TestClassifyTierUsesUnroundedScore(t *testing.T) {
	store := testutil.NewMemStore()
	pub := &testutil.RecordingPublisher{}
	id := store.Seed(classified(models.POI{Name: "Mirador", ReviewCount: 1000, AverageRating: 5, TouristRelevance: 9.99, BookingFrequency: 25}))
	e := newEngine(store, pub, Deps{})

	res, err := e.Classify(context.Background(), id, ClassifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.POIScore != 8.5 || res.NewTier != models.Tier2 {
		t.Errorf("score = %v tier = %d, want 8.5 tier 2", res.POIScore, res.NewTier)
	}
}

func TestClassifyPersistsAndPublishes(t *testing.T) {
	store := testutil.NewMemStore()
	pub := &testutil.RecordingPublisher{}
	id := store.Seed(classified(models.POI{Name: "Peñón de Ifach", ReviewCount: 1000, AverageRating: 5, TouristRelevance: 10}))
	e := newEngine(store, pub, Deps{Bookings: &testutil.StaticBookingCounter{Counts: map[int64]int64{id: 100}}})

	res, err := e.Classify(context.Background(), id, ClassifyOptions{RefreshBookings: true})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.NewTier != models.Tier1 || res.OldTier != models.Tier4 || !res.TierChanged || res.POIScore != 10 {
		t.Errorf("result = %+v", res)
	}

	p, _ := store.POI(id)
	if p.Tier != models.Tier1 || p.POIScore != 10 || p.BookingFrequency != 100 {
		t.Errorf("stored poi = %+v", p)
	}
	if p.NextUpdateAt == nil || !p.NextUpdateAt.Equal(fixedNow.Add(time.Hour)) {
		t.Errorf("NextUpdateAt = %v", p.NextUpdateAt)
	}
	h := store.History(id)
	if len(h) != 1 || h[0].OldTier == nil || *h[0].OldTier != models.Tier4 || h[0].NewTier != models.Tier1 {
		t.Fatalf("history = %+v", h)
	}

	evs := pub.OfType(events.TypeTierChanged)
	if len(evs) != 1 {
		t.Fatalf("events = %v", pub.Types())
	}
	if ev := evs[0].(events.POITierChanged); ev.OldTier != 4 || ev.NewTier != 1 || ev.AggregateID() != id {
		t.Errorf("event = %+v", ev)
	}
}

func TestClassifyUnchangedTierPublishesNothing(t *testing.T) {
	store := testutil.NewMemStore()
	pub := &testutil.RecordingPublisher{}
	id := store.Seed(classified(models.POI{Name: "Kiosk"}))
	e := newEngine(store, pub, Deps{})

	res, err := e.Classify(context.Background(), id, ClassifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.TierChanged || res.NewTier != models.Tier4 {
		t.Errorf("result = %+v", res)
	}
	if len(pub.Types()) != 0 {
		t.Errorf("unexpected events %v", pub.Types())
	}
	if len(store.History(id)) != 1 {
		t.Error("history row missing")
	}
}

func TestFirstClassificationHasNoOldTier(t *testing.T) {
	store := testutil.NewMemStore()
	pub := &testutil.RecordingPublisher{}
	id := store.Seed(models.POI{Name: "New", Tier: models.Tier4, Active: true, ReviewCount: 1000, AverageRating: 5, TouristRelevance: 10})
	e := newEngine(store, pub, Deps{})

	res, err := e.Classify(context.Background(), id, ClassifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.OldTier != 0 || res.TierChanged {
		t.Errorf("result = %+v", res)
	}
	if h := store.History(id); len(h) != 1 || h[0].OldTier != nil {
		t.Errorf("history = %+v", h)
	}
	if len(pub.Types()) != 0 {
		t.Errorf("unexpected events %v", pub.Types())
	}
}

func TestClassifyFailureRollsBackWithoutEvent(t *testing.T) {
	store := testutil.NewMemStore()
	pub := &testutil.RecordingPublisher{}
	id := store.Seed(classified(models.POI{Name: "Museo", ReviewCount: 1000, AverageRating: 5, TouristRelevance: 10}))
	store.Fail("InsertScoreHistory", id, errors.New("disk full"))
	e := newEngine(store, pub, Deps{})

	_, err := e.Classify(context.Background(), id, ClassifyOptions{})
	var ce *errs.ClassificationError
	if !errors.As(err, &ce) || ce.Step != StepWriteHistory || ce.POIID != id {
		t.Fatalf("err = %v, want ClassificationError at %s", err, StepWriteHistory)
	}
	if p, _ := store.POI(id); p.Tier != models.Tier4 || p.POIScore != 0 {
		t.Errorf("poi changed despite rollback: %+v", p)
	}
	if store.Rollbacks != 1 || store.Commits != 0 {
		t.Errorf("commits=%d rollbacks=%d", store.Commits, store.Rollbacks)
	}
	if len(pub.Types()) != 0 {
		t.Errorf("event published for rolled back tx: %v", pub.Types())
	}
}

func TestClassifyExternalUoWIsNotOwned(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	pub := &testutil.RecordingPublisher{}
	id := store.Seed(classified(models.POI{Name: "Playa", ReviewCount: 1000, AverageRating: 5, TouristRelevance: 10}))
	e := newEngine(store, pub, Deps{})

	uow, _ := store.Begin(ctx)
	res, err := e.Classify(ctx, id, ClassifyOptions{UoW: uow})
	if err != nil {
		t.Fatal(err)
	}
	if !res.TierChanged {
		t.Error("caller needs TierChanged to emit the event itself")
	}
	if store.Commits != 0 || store.Rollbacks != 0 {
		t.Errorf("engine touched the external tx: commits=%d rollbacks=%d", store.Commits, store.Rollbacks)
	}
	if len(pub.Types()) != 0 {
		t.Errorf("engine published inside external tx: %v", pub.Types())
	}
	if p, _ := store.POI(id); p.Tier != models.Tier4 {
		t.Error("write visible before caller commit")
	}
	if err := uow.Commit(); err != nil {
		t.Fatal(err)
	}
	if p, _ := store.POI(id); p.Tier == models.Tier4 {
		t.Error("write missing after caller commit")
	}
}

func TestBatchClassifyIndependence(t *testing.T) {
	store := testutil.NewMemStore()
	pub := &testutil.RecordingPublisher{}
	var ids []int64
	for _, name := range []string{"one", "two", "three"} {
		ids = append(ids, store.Seed(classified(models.POI{Name: name, ReviewCount: 1000, AverageRating: 5, TouristRelevance: 10, BookingFrequency: 100})))
	}
	store.Fail("UpdatePOIClassification", ids[1], errors.New("deadlock"))
	e := newEngine(store, pub, Deps{})

	out := e.BatchClassify(context.Background(), ids, ClassifyOptions{})
	if len(out.Results) != 2 || len(out.Failed) != 1 || out.Failed[ids[1]] == nil {
		t.Fatalf("batch = %+v", out)
	}
	for _, id := range []int64{ids[0], ids[2]} {
		if p, _ := store.POI(id); p.Tier != models.Tier1 {
			t.Errorf("poi %d tier = %d, want 1", id, p.Tier)
		}
		if len(store.History(id)) != 1 {
			t.Errorf("poi %d history missing", id)
		}
	}
	if p, _ := store.POI(ids[1]); p.Tier != models.Tier4 || len(store.History(ids[1])) != 0 {
		t.Errorf("failed poi was written: %+v", p)
	}
	if n := len(pub.OfType(events.TypeTierChanged)); n != 2 {
		t.Errorf("tier events = %d, want 2", n)
	}
	if msg := out.Errors()[ids[1]]; msg == "" {
		t.Error("Errors() missing failed id")
	}
}

func TestConcurrentClassifySerialises(t *testing.T) {
	store := testutil.NewMemStore()
	id := store.Seed(classified(models.POI{Name: "Busy", ReviewCount: 500}))
	e := newEngine(store, &testutil.RecordingPublisher{}, Deps{})

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Classify(context.Background(), id, ClassifyOptions{}); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("Classify: %v", err)
	}
	if n := len(store.History(id)); n != 8 {
		t.Errorf("history rows = %d, want 8", n)
	}
}

func TestClassifyWithAggregation(t *testing.T) {
	store := testutil.NewMemStore()
	id := store.Seed(classified(models.POI{Name: "Museo Fallero", Category: "museum", City: "Valencia", ReviewCount: 10, AverageRating: 3}))

	google := testutil.NewMockSource(sources.GooglePlacesName)
	rating, reviews := 4.6, int64(1200)
	google.Default = []models.Candidate{{ExternalID: "g", Name: "Museo Fallero", Rating: &rating, ReviewCount: &reviews}}
	ta := testutil.NewMockSource(sources.TripAdvisorName)
	pos := 3
	taRating, taReviews := 4.4, int64(800)
	ta.Default = []models.Candidate{{ExternalID: "t", Name: "Museo Fallero", Rating: &taRating, ReviewCount: &taReviews, Ranking: &pos}}

	agg := aggregator.New(aggregator.DefaultAggregatorConfig(), sources.NewRegistry(google, ta), nil)
	e := newEngine(store, &testutil.RecordingPublisher{}, Deps{Aggregator: agg})

	res, err := e.Classify(context.Background(), id, ClassifyOptions{Aggregate: true, RefreshRelevance: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Validated || res.ReviewCount != 1000 {
		t.Errorf("result = %+v", res)
	}
	// 0.4*9 + 0.4*(10*0.9) + 0.1*5 + 0.1*5
	if res.Relevance != 8.2 {
		t.Errorf("relevance = %v, want 8.2", res.Relevance)
	}
	if _, ok := store.DataSource(id, sources.TripAdvisorName); !ok {
		t.Error("data source row missing")
	}

	// Relevance alone reuses the cached rankings.
	res2, err := e.Classify(context.Background(), id, ClassifyOptions{RefreshRelevance: true, Seasonal: true, Weather: relevance.WeatherRain})
	if err != nil {
		t.Fatal(err)
	}
	if res2.Relevance != 9.02 {
		t.Errorf("relevance = %v, want 9.02", res2.Relevance)
	}
}

func TestClassifyAggregatesSelectedSources(t *testing.T) {
	store := testutil.NewMemStore()
	id := store.Seed(classified(models.POI{Name: "Museo Fallero", Category: "museum", City: "Valencia"}))

	google := testutil.NewMockSource(sources.GooglePlacesName)
	rating, reviews := 4.6, int64(1200)
	google.Default = []models.Candidate{{Name: "Museo Fallero", Rating: &rating, ReviewCount: &reviews}}
	ta := testutil.NewMockSource(sources.TripAdvisorName)
	ta.Default = google.Default

	agg := aggregator.New(aggregator.DefaultAggregatorConfig(), sources.NewRegistry(google, ta), nil)
	e := newEngine(store, &testutil.RecordingPublisher{}, Deps{Aggregator: agg})

	res, err := e.Classify(context.Background(), id, ClassifyOptions{Aggregate: true, Sources: []string{sources.GooglePlacesName}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Validated || len(res.Sources) != 1 || ta.CallCount() != 0 {
		t.Errorf("sources = %v validated = %v tripadvisor calls = %d", res.Sources, res.Validated, ta.CallCount())
	}

	_, err = e.Classify(context.Background(), id, ClassifyOptions{Aggregate: true, Sources: []string{"yelp"}})
	if !errs.Is(err, errs.ErrClassification) || !errs.Is(err, errs.ErrValidation) {
		t.Errorf("unknown source err = %v", err)
	}
}

func TestClassifyKeepsMetricsWithoutSources(t *testing.T) {
	store := testutil.NewMemStore()
	id := store.Seed(classified(models.POI{Name: "Hidden", ReviewCount: 42, AverageRating: 4.1}))
	agg := aggregator.New(aggregator.DefaultAggregatorConfig(), sources.NewRegistry(testutil.NewMockSource("empty")), nil)
	e := newEngine(store, &testutil.RecordingPublisher{}, Deps{Aggregator: agg})

	res, err := e.Classify(context.Background(), id, ClassifyOptions{Aggregate: true})
	if err != nil {
		t.Fatalf("insufficient sources must not fail classification: %v", err)
	}
	if res.Validated || res.ReviewCount != 42 || res.Rating != 4.1 {
		t.Errorf("result = %+v", res)
	}
}

func TestGetPOIsForUpdateAndTierStats(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	past, future := fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour)
	store.Seed(models.POI{Name: "due", Tier: models.Tier2, Active: true, NextUpdateAt: &past})
	store.Seed(models.POI{Name: "later", Tier: models.Tier2, Active: true, NextUpdateAt: &future})
	store.Seed(models.POI{Name: "inactive", Tier: models.Tier2, NextUpdateAt: &past})
	store.Seed(models.POI{Name: "t1", Tier: models.Tier1, Active: true, NextUpdateAt: &past})
	e := newEngine(store, &testutil.RecordingPublisher{}, Deps{})

	due, err := e.GetPOIsForUpdate(ctx, models.Tier2, 0)
	if err != nil || len(due) != 1 || due[0].Name != "due" {
		t.Fatalf("due = %+v, %v", due, err)
	}
	if _, err := e.GetPOIsForUpdate(ctx, 7, 0); !errs.Is(err, errs.ErrValidation) {
		t.Errorf("invalid tier err = %v", err)
	}

	st, err := e.TierStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Tiers) != 4 || st.Total != 3 || st.Tiers[1].Count != 2 || st.Tiers[2].Count != 0 {
		t.Errorf("stats = %+v", st)
	}
}
