package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordClassification(t *testing.T) {
	tests := []struct {
		name   string
		tier   int
		err    error
		labels []string
	}{
		{name: "tier 1 success", tier: 1, labels: []string{"1", "success"}},
		{name: "tier 4 success", tier: 4, labels: []string{"4", "success"}},
		{name: "failure ignores tier", tier: 2, err: errors.New("boom"), labels: []string{"none", "error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClassificationsTotal.WithLabelValues(tt.labels...)
			before := testutil.ToFloat64(c)
			RecordClassification(tt.tier, 5*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("counter delta = %v, want 1", got)
			}
		})
	}
}

func TestRecordTierTransition(t *testing.T) {
	c := TierTransitionsTotal.WithLabelValues("none", "3")
	before := testutil.ToFloat64(c)
	RecordTierTransition(0, 3)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("first classification transition delta = %v, want 1", got)
	}

	c = TierTransitionsTotal.WithLabelValues("2", "1")
	before = testutil.ToFloat64(c)
	RecordTierTransition(2, 1)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("promotion delta = %v, want 1", got)
	}
}

func TestRecordDiscoveryRun(t *testing.T) {
	created := DiscoveryCandidatesTotal.WithLabelValues("created")
	skipped := DiscoveryCandidatesTotal.WithLabelValues("skipped")
	runs := DiscoveryRunsTotal.WithLabelValues("completed")
	c0, s0, r0 := testutil.ToFloat64(created), testutil.ToFloat64(skipped), testutil.ToFloat64(runs)

	RecordDiscoveryRun("completed", 3, 1, 2, 0)

	if got := testutil.ToFloat64(created) - c0; got != 3 {
		t.Errorf("created delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(skipped) - s0; got != 2 {
		t.Errorf("skipped delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(runs) - r0; got != 1 {
		t.Errorf("runs delta = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordSourceCall("google_places", 20*time.Millisecond, nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"poi_source_calls_total", "poi_source_call_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
