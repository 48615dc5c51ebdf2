package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, SQLite{}, "file:"+filepath.Join(t.TempDir(), "pois.db"), Options{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func f64(v float64) *float64 { return &v }

func createPOI(t *testing.T, db *DB, p *models.POI) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := db.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	id, err := db.CreatePOITx(ctx, tx, p)
	if err != nil {
		tx.Rollback()
		t.Fatalf("create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return id
}

func TestCreateAndReadPOI(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := createPOI(t, db, &models.POI{
		ExternalID: strPtr("gp-1"), Name: "La Pepica", Slug: "la-pepica", Category: "restaurant",
		Lat:        f64(39.4667), Lng: f64(-0.3236), ReviewCount: 1200, AverageRating: 4.4, Active: true,
	})

	got, err := db.GetPOIByIDCtx(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "La Pepica" || got.Tier != models.Tier4 || !got.Active {
		t.Fatalf("unexpected poi: %+v", got)
	}
	if got.Lat == nil || *got.Lat != 39.4667 {
		t.Fatalf("lat = %v", got.Lat)
	}

	byExt, err := db.GetPOIByExternalIDCtx(ctx, "gp-1")
	if err != nil || byExt == nil || byExt.ID != id {
		t.Fatalf("by external id = %+v, %v", byExt, err)
	}
	missing, err := db.GetPOIByExternalIDCtx(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing external id = %+v, %v", missing, err)
	}

	_, err = db.GetPOIByIDCtx(ctx, id+100)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateExternalIDIsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	createPOI(t, db, &models.POI{ExternalID: strPtr("dup"), Name: "A", Slug: "a", Active: true})

	tx, err := db.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	_, err = db.CreatePOITx(ctx, tx, &models.POI{ExternalID: strPtr("dup"), Name: "B", Slug: "b", Active: true})

	var cv *errs.ConstraintViolationError
	if !errors.As(err, &cv) || cv.Kind != errs.ConstraintUnique {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestHistoryRequiresExistingPOI(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, err := db.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	err = db.InsertScoreHistoryTx(ctx, tx, &models.POIScoreHistory{POIID: 999, NewTier: models.Tier2, CalculatedAt: time.Now()})
	var cv *errs.ConstraintViolationError
	if !errors.As(err, &cv) || cv.Kind != errs.ConstraintForeignKey {
		t.Fatalf("expected foreign key violation, got %v", err)
	}
}

func TestClassificationUpdateAndHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := createPOI(t, db, &models.POI{Name: "Museo", Slug: "museo", Category: "museum", Active: true})

	tx, err := db.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	p, err := db.LockPOITx(ctx, tx, id)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	now := time.Now()
	next := now.Add(time.Hour)
	old := p.Tier
	p.POIScore, p.Tier, p.NextUpdateAt, p.LastClassifiedAt = 8.7, models.Tier1, &next, &now
	if err := db.UpdatePOIClassificationTx(ctx, tx, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := db.InsertScoreHistoryTx(ctx, tx, &models.POIScoreHistory{
		POIID: id, POIScore: 8.7, OldTier: &old, NewTier: models.Tier1, CalculatedAt: now,
	}); err != nil {
		t.Fatalf("history: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := db.GetPOIByIDCtx(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Tier != models.Tier1 || got.POIScore != 8.7 || got.NextUpdateAt == nil {
		t.Fatalf("classification not stored: %+v", got)
	}
	hist, err := db.ListScoreHistoryCtx(ctx, id, 10)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if len(hist) != 1 || hist[0].OldTier == nil || *hist[0].OldTier != models.Tier4 || hist[0].NewTier != models.Tier1 {
		t.Fatalf("history = %+v", hist)
	}
}

func TestUpsertDataSourceOverwrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := createPOI(t, db, &models.POI{Name: "Playa", Slug: "playa", Active: true})

	for _, rating := range []float64{4.1, 4.6} {
		tx, err := db.BeginTx(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		r := rating
		if err := db.UpsertDataSourceTx(ctx, tx, &models.POIDataSource{
			POIID:         id, SourceName: "tripadvisor", Rating: &r, RawPayload: []byte(`{"r":1}`),
			LastScrapedAt: time.Now(), ScrapeStatus: models.ScrapeSuccess,
		}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	rows, err := db.ListDataSourcesCtx(ctx, id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Rating == nil || *rows[0].Rating != 4.6 {
		t.Fatalf("data sources = %+v", rows)
	}
}

func TestListDueForUpdateAndTierCounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	createPOI(t, db, &models.POI{Name: "due", Slug: "due", Tier: models.Tier2, NextUpdateAt: &past, Active: true})
	createPOI(t, db, &models.POI{Name: "never", Slug: "never", Tier: models.Tier2, Active: true})
	createPOI(t, db, &models.POI{Name: "later", Slug: "later", Tier: models.Tier2, NextUpdateAt: &future, Active: true})
	createPOI(t, db, &models.POI{Name: "other tier", Slug: "other", Tier: models.Tier3, NextUpdateAt: &past, Active: true})
	createPOI(t, db, &models.POI{Name: "inactive", Slug: "inactive", Tier: models.Tier2, NextUpdateAt: &past, Active: false})

	due, err := db.ListPOIsDueForUpdateCtx(ctx, models.Tier2, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 || due[0].Name != "never" || due[1].Name != "due" {
		t.Fatalf("due = %+v", due)
	}

	counts, err := db.CountPOIsByTierCtx(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	want := map[models.Tier]int64{models.Tier2: 3, models.Tier3: 1}
	if len(counts) != len(want) {
		t.Fatalf("counts = %+v", counts)
	}
	for _, c := range counts {
		if want[c.Tier] != c.Count {
			t.Fatalf("tier %d count = %d, want %d", c.Tier, c.Count, want[c.Tier])
		}
	}
}

func TestDiscoveryRunRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := &models.DiscoveryRun{
		RunType:    models.RunTypeDestination, Destination: "calpe",
		Categories: []string{"beach", "restaurant"}, Sources: []string{"google_places"},
		Criteria:   []byte(`{"min_reviews":10}`), Status: models.RunRunning, StartedAt: time.Now(),
	}
	if err := db.CreateDiscoveryRunCtx(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	done := time.Now()
	run.Status = models.RunCompleted
	run.Found, run.Created, run.Skipped = 5, 3, 2
	run.Progress = map[string]models.CategoryProgress{"beach": {Found: 5, Created: 3, Skipped: 2, Status: "done"}}
	run.AddError("restaurant", "tripadvisor", "timeout", done)
	run.CompletedAt = &done
	if err := db.UpdateDiscoveryRunCtx(ctx, run); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := db.GetDiscoveryRunCtx(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.RunCompleted || got.Created != 3 || got.CompletedAt == nil {
		t.Fatalf("run = %+v", got)
	}
	if len(got.Categories) != 2 || got.Progress["beach"].Found != 5 || len(got.Errors) != 1 {
		t.Fatalf("json columns = %+v", got)
	}
}

func TestMonthlySpendAccumulates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if got, err := db.GetMonthlySpendCtx(ctx, "2026-10"); err != nil || got != 0 {
		t.Fatalf("empty month = %v, %v", got, err)
	}
	for i := 0; i < 3; i++ {
		if err := db.AddMonthlySpendCtx(ctx, "2026-10", 0.5); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	got, err := db.GetMonthlySpendCtx(ctx, "2026-10")
	if err != nil || got != 1.5 {
		t.Fatalf("spend = %v, %v", got, err)
	}
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "mysql", false},
		{"MySQL", "mysql", false},
		{"sqlite", "sqlite", false},
		{"postgres", "", true},
	}
	for _, tt := range tests {
		d, err := DialectFor(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DialectFor(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || d.Name() != tt.want {
			t.Errorf("DialectFor(%q) = %v, %v", tt.in, d, err)
		}
	}
}

func TestSQLiteDialectNormalizesDSN(t *testing.T) {
	dsn, err := SQLite{}.NormalizeDSN("file:pois.db")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for _, want := range []string{"?_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)", "_txlock=immediate"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
	if dsn, _ := (SQLite{}).NormalizeDSN("file:pois.db?_txlock=deferred"); strings.Contains(dsn, "immediate") {
		t.Errorf("explicit _txlock overridden: %q", dsn)
	}
	if _, err := (SQLite{}).NormalizeDSN(""); err == nil {
		t.Error("empty dsn accepted")
	}
}

func TestMySQLDialectNormalizesDSN(t *testing.T) {
	dsn, err := MySQL{}.NormalizeDSN("user:pw@tcp(localhost:3306)/pois")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for _, want := range []string{"parseTime=true", "clientFoundRows=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
	if (MySQL{}).LockClause() != " FOR UPDATE" {
		t.Error("mysql must lock rows for update")
	}
}
