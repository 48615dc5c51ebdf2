package dedup

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"poi-tiering/internal/models"
)

type mapLookup struct {
	pois map[string]*models.POI
	err  error
}

func (m mapLookup) GetPOIByExternalIDCtx(_ context.Context, id string) (*models.POI, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.pois[id], nil
}

func f(v float64) *float64 { return &v }
func n(v int64) *int64     { return &v }

func cand(source, id, name string, lat, lng *float64, reviews int64) models.Candidate {
	return models.Candidate{Source: source, ExternalID: id, Name: name, Lat: lat, Lng: lng, ReviewCount: n(reviews)}
}

func TestDeduplicateMergesNearbySameName(t *testing.T) {
	// ~30 m apart on the Valencia seafront.
	a := cand("google_places", "g-1", "Restaurant La Pepica", f(39.46690), f(-0.32360), 800)
	a.Phone = "+34 963 71 03 66"
	b := cand("tripadvisor", "ta-9", "La Pepica Restaurant", f(39.46717), f(-0.32360), 5400)
	b.Rating = f(4.3)
	b.Website = "https://lapepica.com"

	d := New(DefaultConfig(), nil, nil)
	got, stats, err := d.Deduplicate(context.Background(), []models.Candidate{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	m := got[0].Candidate
	if m.Reviews() != 5400 {
		t.Errorf("review count = %d, want the higher 5400", m.Reviews())
	}
	if m.Rating == nil || *m.Rating != 4.3 {
		t.Errorf("rating = %v, want 4.3 from the better-reviewed record", m.Rating)
	}
	if m.Phone != a.Phone || m.Website != b.Website {
		t.Errorf("contact fields = %q / %q", m.Phone, m.Website)
	}
	if m.ExternalID != "g-1" {
		t.Errorf("merged record should keep the first identity, got %q", m.ExternalID)
	}
	if stats.Merged != 1 || !reflect.DeepEqual(got[0].MergedSources, []string{"tripadvisor"}) {
		t.Errorf("stats = %+v, merged sources = %v", stats, got[0].MergedSources)
	}
}

func TestDeduplicateKeepsDistinct(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Candidate
	}{
		{
			name: "same name too far",
			a:    cand("s", "1", "Mercado Central", f(39.4736), f(-0.3790), 10),
			b:    cand("s", "2", "Mercado Central", f(39.4760), f(-0.3790), 10),
		},
		{
			name: "close but different names",
			a:    cand("s", "1", "Bar Pepe", f(39.4736), f(-0.3790), 10),
			b:    cand("s", "2", "Heladeria Italiana", f(39.4737), f(-0.3790), 10),
		},
		{
			name: "no coordinates never proximity-match",
			a:    cand("s", "1", "Museo", nil, nil, 10),
			b:    cand("s", "2", "Museo", nil, nil, 10),
		},
	}
	d := New(DefaultConfig(), nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := d.Deduplicate(context.Background(), []models.Candidate{tt.a, tt.b})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Errorf("len = %d, want 2", len(got))
			}
		})
	}
}

func TestDeduplicateDropsRepeatedProviderID(t *testing.T) {
	a := cand("google_places", "g-1", "Peñón de Ifach", f(38.634), f(0.073), 100)
	b := cand("google_places", "g-1", "Penon de Ifach (Calpe)", f(38.70), f(0.10), 9999)

	got, stats, err := New(DefaultConfig(), nil, nil).Deduplicate(context.Background(), []models.Candidate{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Candidate.Reviews() != 100 {
		t.Fatalf("first occurrence should win unchanged: %+v", got)
	}
	if stats.DuplicateID != 1 {
		t.Errorf("DuplicateID = %d, want 1", stats.DuplicateID)
	}
}

func TestDeduplicateTagsStoredPOIs(t *testing.T) {
	lookup := mapLookup{pois: map[string]*models.POI{"g-7": {ID: 77}}}
	cands := []models.Candidate{
		cand("google_places", "g-7", "Playa Levante", f(38.64), f(0.05), 10),
		cand("google_places", "g-8", "Playa Arenal", f(38.65), f(0.06), 10),
		cand("manual", "", "Mirador", f(38.66), f(0.07), 10),
	}
	got, _, err := New(DefaultConfig(), lookup, nil).Deduplicate(context.Background(), cands)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		action Action
		id     int64
	}{{ActionUpdate, 77}, {ActionNew, 0}, {ActionNew, 0}}
	for i, w := range want {
		if got[i].Action != w.action || got[i].POIID != w.id {
			t.Errorf("result %d = %s/%d, want %s/%d", i, got[i].Action, got[i].POIID, w.action, w.id)
		}
	}
}

func TestDeduplicateLookupError(t *testing.T) {
	d := New(DefaultConfig(), mapLookup{err: errors.New("db down")}, nil)
	_, _, err := d.Deduplicate(context.Background(), []models.Candidate{cand("s", "1", "x", nil, nil, 0)})
	if err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	cands := []models.Candidate{
		cand("google_places", "g-1", "Restaurant La Pepica", f(39.46690), f(-0.32360), 800),
		cand("tripadvisor", "ta-9", "La Pepica Restaurant", f(39.46717), f(-0.32360), 5400),
		cand("google_places", "g-1", "dup id", f(10), f(10), 1),
		cand("booking", "b-3", "Hotel Sol", f(39.47), f(-0.33), 50),
		cand("booking", "b-4", "Hotel Sol", nil, nil, 20),
	}
	lookup := mapLookup{pois: map[string]*models.POI{"b-3": {ID: 3}}}
	d := New(DefaultConfig(), lookup, nil)

	first, _, err := d.Deduplicate(context.Background(), cands)
	if err != nil {
		t.Fatal(err)
	}
	again := make([]models.Candidate, len(first))
	for i, r := range first {
		again[i] = r.Candidate
	}
	second, stats, err := d.Deduplicate(context.Background(), again)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Merged != 0 || stats.DuplicateID != 0 {
		t.Errorf("second pass changed the set: %+v", stats)
	}
	if len(first) != len(second) {
		t.Fatalf("len %d != %d", len(first), len(second))
	}
	for i := range first {
		if !reflect.DeepEqual(first[i].Candidate, second[i].Candidate) || first[i].Action != second[i].Action || first[i].POIID != second[i].POIID {
			t.Errorf("result %d differs:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestMergeFillsCoordinates(t *testing.T) {
	keep := models.Candidate{Name: "x"}
	dup := models.Candidate{Name: "x", Lat: f(1), Lng: f(2)}
	got := Merge(keep, dup)
	if !got.HasCoordinates() || *got.Lat != 1 {
		t.Errorf("coordinates not taken from dup: %+v", got)
	}
	withCoords := models.Candidate{Lat: f(5), Lng: f(6)}
	if got := Merge(withCoords, dup); *got.Lat != 5 {
		t.Errorf("existing coordinates overwritten: %+v", got)
	}
}
