package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"poi-tiering/internal/classification"
	"poi-tiering/internal/constants"
	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/metrics"
)

// Classifier is the part of the classification engine the scheduler drives.
type Classifier interface {
	GetPOIsForUpdate(ctx context.Context, tier models.Tier, limit int) ([]models.POI, error)
	BatchClassify(ctx context.Context, ids []int64, opts classification.ClassifyOptions) *classification.BatchResult
}

// Config maps each tier to a 5-field cron spec. An empty spec disables
// that tier.
type Config struct {
	Specs      map[models.Tier]string
	BatchLimit int
	JobTimeout time.Duration
	// Seasonal applies seasonal relevance multipliers on refresh.
	Seasonal bool
}

func DefaultSchedulerConfig() Config {
	return Config{
		Specs: map[models.Tier]string{
			models.Tier1: "0 * * * *",
			models.Tier2: "15 3 * * *",
			models.Tier3: "30 3 * * 1",
			models.Tier4: "45 3 1 * *",
		},
		BatchLimit: constants.SchedulerBatchLimitDefault,
		JobTimeout: constants.SchedulerJobTimeoutDefault,
	}
}

// RunReport summarises one tier refresh.
type RunReport struct {
	Tier      models.Tier      `json:"tier"`
	Due       int              `json:"due"`
	Refreshed int              `json:"refreshed"`
	Changed   int              `json:"tier_changed"`
	Failed    map[int64]string `json:"failed,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// Scheduler refreshes due POIs tier by tier on cron schedules.
type Scheduler struct {
	cfg      Config
	engine   Classifier
	cron     *cron.Cron
	log      *logging.ComponentLogger
	entries  map[models.Tier]cron.EntryID
	inFlight map[models.Tier]bool
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// New validates every spec and registers one job per tier.
func New(cfg Config, engine Classifier, log *logging.Logger) (*Scheduler, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = constants.SchedulerJobTimeoutDefault
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:      cfg,
		engine:   engine,
		cron:     cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		log:      log.WithComponent("scheduler"),
		entries:  make(map[models.Tier]cron.EntryID),
		inFlight: make(map[models.Tier]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
	for t := models.Tier1; t <= models.Tier4; t++ {
		spec := cfg.Specs[t]
		if spec == "" {
			continue
		}
		sched, err := parser.Parse(spec)
		if err != nil {
			cancel()
			return nil, errs.NewValidation("scheduler.New", fmt.Sprintf("tier %d schedule %q", t, spec), err)
		}
		tier := t
		s.entries[tier] = s.cron.Schedule(sched, cron.FuncJob(func() { s.tick(tier) }))
	}
	return s, nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info(s.ctx, "scheduler started", logging.Int("jobs", len(s.entries)))
}

// Stop halts scheduling, cancels running refreshes and waits for them to
// return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next planned run per scheduled tier.
func (s *Scheduler) Next() map[models.Tier]time.Time {
	out := make(map[models.Tier]time.Time, len(s.entries))
	for t, id := range s.entries {
		out[t] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Scheduler) tick(tier models.Tier) {
	s.mu.Lock()
	if s.inFlight[tier] {
		s.mu.Unlock()
		s.log.Warn(s.ctx, "previous refresh still running, skipping", logging.Int("tier", int(tier)))
		return
	}
	s.inFlight[tier] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight[tier] = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()
	if _, err := s.RunTier(ctx, tier); err != nil {
		s.log.Error(ctx, "scheduled refresh failed", err, logging.Int("tier", int(tier)))
	}
}

// RunTier refreshes the POIs of tier that are due now. Each POI is
// re-aggregated and reclassified in its own transaction.
func (s *Scheduler) RunTier(ctx context.Context, tier models.Tier) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{Tier: tier}

	due, err := s.engine.GetPOIsForUpdate(ctx, tier, s.cfg.BatchLimit)
	if err != nil {
		metrics.RecordSchedulerJob(int(tier), 0, err)
		return nil, err
	}
	report.Due = len(due)
	if len(due) == 0 {
		metrics.RecordSchedulerJob(int(tier), 0, nil)
		return report, nil
	}

	ids := make([]int64, len(due))
	for i, p := range due {
		ids[i] = p.ID
	}
	batch := s.engine.BatchClassify(ctx, ids, classification.ClassifyOptions{
		Aggregate:        true,
		RefreshRelevance: true,
		RefreshBookings:  true,
		Seasonal:         s.cfg.Seasonal,
	})
	report.Refreshed = len(batch.Results)
	for _, r := range batch.Results {
		if r.TierChanged {
			report.Changed++
		}
	}
	if len(batch.Failed) > 0 {
		report.Failed = batch.Errors()
	}
	report.Duration = time.Since(start)

	var jobErr error
	if report.Refreshed == 0 {
		jobErr = fmt.Errorf("all %d refreshes failed", len(batch.Failed))
	}
	metrics.RecordSchedulerJob(int(tier), report.Refreshed, jobErr)
	s.log.Info(ctx, "tier refreshed",
		logging.Int("tier", int(tier)),
		logging.Int("due", report.Due),
		logging.Int("refreshed", report.Refreshed),
		logging.Int("tier_changed", report.Changed),
		logging.Int("failed", len(batch.Failed)),
		logging.Duration("duration", report.Duration))
	return report, jobErr
}
