package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Classification
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_classifications_total",
			Help: "Classification attempts by resulting tier and outcome",
		},
		[]string{"tier", "result"},
	)

	ClassificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poi_classification_duration_seconds",
			Help:    "Duration of a single POI classification",
			Buckets: prometheus.DefBuckets,
		},
	)

	TierTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_tier_transitions_total",
			Help: "Committed tier changes by old and new tier",
		},
		[]string{"from", "to"},
	)

	// Sources
	SourceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_source_calls_total",
			Help: "Calls to external POI sources by outcome",
		},
		[]string{"source", "result"},
	)

	SourceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poi_source_call_duration_seconds",
			Help:    "Latency of external POI source calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poi_source_circuit_state",
			Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Budget
	BudgetSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_budget_skips_total",
			Help: "Source calls skipped because the monthly budget was exhausted",
		},
		[]string{"source"},
	)

	BudgetSpendUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poi_budget_spend_usd",
			Help: "Provider spend recorded for the current month",
		},
	)

	// Discovery
	DiscoveryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_discovery_runs_total",
			Help: "Discovery runs by final status",
		},
		[]string{"status"},
	)

	DiscoveryCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_discovery_candidates_total",
			Help: "Discovered candidates by outcome",
		},
		[]string{"outcome"},
	)

	TransactionRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_transaction_rollbacks_total",
			Help: "Rolled back units of work by operation",
		},
		[]string{"op"},
	)

	// Events
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_events_published_total",
			Help: "Published domain events by type and outcome",
		},
		[]string{"type", "result"},
	)

	// Scheduler
	SchedulerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_scheduler_jobs_total",
			Help: "Scheduled tier refresh runs by outcome",
		},
		[]string{"tier", "result"},
	)

	SchedulerPOIsRefreshed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_scheduler_pois_refreshed_total",
			Help: "POIs reclassified by scheduled refreshes",
		},
		[]string{"tier"},
	)

	// Config
	ProfileReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_scoring_profile_reloads_total",
			Help: "Scoring profile reload attempts by outcome",
		},
		[]string{"result"},
	)

	// Ops API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poi_api_requests_total",
			Help: "Ops API requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poi_api_request_duration_seconds",
			Help:    "Ops API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordClassification records one classification attempt. tier is ignored
// on failure.
func RecordClassification(tier int, duration time.Duration, err error) {
	label := "none"
	if err == nil {
		label = strconv.Itoa(tier)
	}
	ClassificationsTotal.WithLabelValues(label, result(err)).Inc()
	ClassificationDuration.Observe(duration.Seconds())
}

func RecordTierTransition(from, to int) {
	fromLabel := "none"
	if from > 0 {
		fromLabel = strconv.Itoa(from)
	}
	TierTransitionsTotal.WithLabelValues(fromLabel, strconv.Itoa(to)).Inc()
}

func RecordSourceCall(source string, duration time.Duration, err error) {
	SourceCallsTotal.WithLabelValues(source, result(err)).Inc()
	SourceCallDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordSourceRejected counts a call short-circuited before reaching the
// provider (open breaker, rate limit wait aborted).
func RecordSourceRejected(source, reason string) {
	SourceCallsTotal.WithLabelValues(source, reason).Inc()
}

func SetCircuitState(name string, state int) {
	CircuitState.WithLabelValues(name).Set(float64(state))
}

func RecordBudgetSkip(source string) {
	BudgetSkipsTotal.WithLabelValues(source).Inc()
}

func SetBudgetSpend(usd float64) {
	BudgetSpendUSD.Set(usd)
}

func RecordDiscoveryRun(status string, created, updated, skipped, failed int) {
	DiscoveryRunsTotal.WithLabelValues(status).Inc()
	DiscoveryCandidatesTotal.WithLabelValues("created").Add(float64(created))
	DiscoveryCandidatesTotal.WithLabelValues("updated").Add(float64(updated))
	DiscoveryCandidatesTotal.WithLabelValues("skipped").Add(float64(skipped))
	DiscoveryCandidatesTotal.WithLabelValues("failed").Add(float64(failed))
}

func RecordRollback(op string) {
	TransactionRollbacksTotal.WithLabelValues(op).Inc()
}

func RecordEventPublish(eventType string, err error) {
	EventsPublishedTotal.WithLabelValues(eventType, result(err)).Inc()
}

func RecordSchedulerJob(tier int, refreshed int, err error) {
	label := strconv.Itoa(tier)
	SchedulerJobsTotal.WithLabelValues(label, result(err)).Inc()
	SchedulerPOIsRefreshed.WithLabelValues(label).Add(float64(refreshed))
}

func RecordProfileReload(err error) {
	ProfileReloadsTotal.WithLabelValues(result(err)).Inc()
}

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler exposes the default registry in Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }
