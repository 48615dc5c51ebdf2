package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"poi-tiering/internal/aggregator"
	"poi-tiering/internal/budget"
	"poi-tiering/internal/classification"
	"poi-tiering/internal/constants"
	"poi-tiering/internal/criteria"
	"poi-tiering/internal/dedup"
	"poi-tiering/internal/domain"
	"poi-tiering/internal/models"
	"poi-tiering/internal/sources"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/events"
	"poi-tiering/pkg/geography"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/metrics"
	"poi-tiering/pkg/utils"
)

// Config holds discovery defaults.
type Config struct {
	// FetchWorkers bounds concurrent source calls within one run.
	FetchWorkers int
	// LimitPerQuery caps the candidates requested per category and source.
	LimitPerQuery int
	Destinations  map[string]geography.Destination
}

func DefaultDiscoveryConfig() Config {
	return Config{
		FetchWorkers:  4,
		LimitPerQuery: 20,
		Destinations:  geography.DefaultDestinations,
	}
}

// DiscoveryOptions describe one bulk discovery run.
type DiscoveryOptions struct {
	Destination string   `json:"destination" validate:"required"`
	Categories  []string `json:"categories" validate:"required,min=1,dive,required"`
	// Sources restricts the run to the named sources; empty means all.
	Sources []string `json:"sources,omitempty"`
	// Criteria overrides the service's default criteria.
	Criteria *criteria.Criteria `json:"criteria,omitempty"`
	Limit    int                `json:"limit,omitempty" validate:"gte=0"`
	// Force ignores the monthly provider budget.
	Force bool `json:"force,omitempty"`
}

// Summary is returned from every run, including failed ones.
type Summary struct {
	RunID       int64                              `json:"run_id"`
	Destination string                             `json:"destination"`
	Status      models.RunStatus                   `json:"status"`
	Found       int                                `json:"found"`
	Created     int                                `json:"created"`
	Updated     int                                `json:"updated"`
	Skipped     int                                `json:"skipped"`
	Failed      int                                `json:"failed"`
	Errors      []models.RunError                  `json:"errors"`
	Progress    map[string]models.CategoryProgress `json:"progress"`
	POIIDs      []int64                            `json:"poi_ids"`
	Duration    time.Duration                      `json:"duration"`
}

// Deps are the collaborators of a Service.
type Deps struct {
	Registry   *sources.Registry
	Lookup     dedup.Lookup
	Runs       domain.DiscoveryRunRepository
	UoW        domain.UnitOfWorkFactory
	Classifier *classification.Engine
	Publisher  events.Publisher
	Logger     *logging.Logger
	// Criteria are the default quality gates.
	Criteria criteria.Criteria
	// Sources supplies rating scales and trust weights.
	Sources aggregator.Config
}

// Service runs bulk discovery for a destination.
type Service struct {
	cfg        Config
	registry   *sources.Registry
	dedup      *dedup.Deduplicator
	runs       domain.DiscoveryRunRepository
	uows       domain.UnitOfWorkFactory
	classifier *classification.Engine
	pub        events.Publisher
	logger     *logging.Logger
	log        *logging.ComponentLogger
	now        func() time.Time

	mu       sync.RWMutex
	criteria criteria.Criteria
	srcCfg   aggregator.Config
}

func NewService(cfg Config, d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = logging.NewNop()
	}
	pub := d.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 1
	}
	srcCfg := d.Sources
	if srcCfg.Sources == nil {
		srcCfg = aggregator.DefaultAggregatorConfig()
	}
	crit := d.Criteria
	if crit.MaxRating == 0 {
		crit = criteria.Default()
	}
	return &Service{
		cfg:        cfg,
		registry:   d.Registry,
		dedup:      dedup.New(dedup.DefaultConfig(), d.Lookup, log),
		runs:       d.Runs,
		uows:       d.UoW,
		classifier: d.Classifier,
		pub:        pub,
		logger:     log,
		log:        log.WithComponent("discovery"),
		now:        time.Now,
		criteria:   crit,
		srcCfg:     srcCfg,
	}
}

// SetClock replaces the service's clock; used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetDefaults swaps the default criteria and source settings, e.g. after a
// scoring profile reload.
func (s *Service) SetDefaults(c criteria.Criteria, src aggregator.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria = c
	s.srcCfg = src
}

func (s *Service) defaults() (criteria.Criteria, aggregator.Config) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criteria, s.srcCfg
}

// GetRun returns a stored discovery run.
func (s *Service) GetRun(ctx context.Context, id int64) (*models.DiscoveryRun, error) {
	return s.runs.GetDiscoveryRunCtx(ctx, id)
}

// DiscoverDestination fetches, deduplicates, filters, persists and
// classifies the POIs of a destination. Persistence happens in one
// transaction: any write failure rolls back the whole batch and the
// returned error is a TransactionError. Source failures are recorded on
// the run and do not abort it.
func (s *Service) DiscoverDestination(ctx context.Context, opts DiscoveryOptions) (*Summary, error) {
	const op = "discovery.DiscoverDestination"
	start := time.Now()

	crit, srcCfg := s.defaults()
	if opts.Criteria != nil {
		crit = *opts.Criteria
	}
	opts.Destination = strings.TrimSpace(opts.Destination)
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	filter, err := criteria.NewFilter(crit, s.logger)
	if err != nil {
		return nil, err
	}
	adapters, err := s.registry.Select(opts.Sources)
	if err != nil {
		return nil, errs.NewValidation(op, "sources", err)
	}

	run := s.newRun(opts, crit, adapters)
	if err := s.runs.CreateDiscoveryRunCtx(ctx, run); err != nil {
		return nil, err
	}
	ctx = logging.WithRunID(ctx, run.ID)
	if opts.Force {
		ctx = budget.WithForce(ctx)
	}
	s.log.Info(ctx, "discovery started",
		logging.String("destination", opts.Destination),
		logging.Int("categories", len(opts.Categories)),
		logging.Int("sources", len(adapters)))

	candidates := s.fetchAll(ctx, run, opts, adapters, srcCfg)
	run.Found = len(candidates)

	results, dstats, err := s.dedup.Deduplicate(ctx, candidates)
	if err != nil {
		return s.fail(ctx, run, start, err)
	}
	s.log.Debug(ctx, "deduplicated",
		logging.Int("input", dstats.Input),
		logging.Int("duplicate_ids", dstats.DuplicateID),
		logging.Int("merged", dstats.Merged))

	kept := make([]dedup.Result, 0, len(results))
	for _, r := range results {
		if ok, rule := filter.Check(ctx, r.Candidate); !ok {
			run.Skipped++
			s.bump(run, r.Candidate.Category, func(p *models.CategoryProgress) { p.Skipped++ })
			metrics.RecordSourceRejected(r.Candidate.Source, rule)
			continue
		}
		kept = append(kept, r)
	}

	out, err := s.persist(ctx, run, kept, srcCfg)
	if err != nil {
		return s.fail(ctx, run, start, errs.NewTransaction(op, err))
	}

	now := s.now().UTC()
	run.Status = models.RunCompleted
	run.CompletedAt = &now
	for cat, p := range run.Progress {
		if p.Status == "" {
			p.Status = string(models.RunCompleted)
			run.Progress[cat] = p
		}
	}
	if err := s.runs.UpdateDiscoveryRunCtx(ctx, run); err != nil {
		s.log.Error(ctx, "failed to record completed run", err)
	}
	metrics.RecordDiscoveryRun(string(run.Status), run.Created, run.Updated, run.Skipped, run.Failed)

	for _, ev := range out.created {
		s.publish(ctx, ev)
	}
	for _, res := range out.changed {
		s.publish(ctx, res.TierChangedEvent(now))
	}
	s.publish(ctx, events.DiscoveryCompleted{
		Base:        events.Base{Ts: now, ID: run.ID},
		Destination: run.Destination,
		Categories:  run.Categories,
		Found:       run.Found,
		Created:     run.Created,
		Updated:     run.Updated,
		Skipped:     run.Skipped,
		Failed:      run.Failed,
		Errors:      len(run.Errors),
	})

	sum := summarize(run, time.Since(start))
	sum.POIIDs = out.ids
	s.log.Info(ctx, "discovery completed",
		logging.Int("found", run.Found),
		logging.Int("created", run.Created),
		logging.Int("updated", run.Updated),
		logging.Int("skipped", run.Skipped),
		logging.Int("failed", run.Failed),
		logging.Duration("duration", sum.Duration))
	return sum, nil
}

func validateOptions(opts DiscoveryOptions) error {
	if opts.Destination == "" {
		return errs.NewValidation("discovery.DiscoverDestination", "destination is required", nil)
	}
	if len(opts.Categories) == 0 {
		return errs.NewValidation("discovery.DiscoverDestination", "at least one category is required", nil)
	}
	for _, c := range opts.Categories {
		if strings.TrimSpace(c) == "" {
			return errs.NewValidation("discovery.DiscoverDestination", "empty category", nil)
		}
	}
	if opts.Limit < 0 {
		return errs.NewValidation("discovery.DiscoverDestination", "limit must not be negative", nil)
	}
	return nil
}

func (s *Service) newRun(opts DiscoveryOptions, crit criteria.Criteria, adapters []sources.Adapter) *models.DiscoveryRun {
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	critJSON, _ := json.Marshal(crit)
	run := &models.DiscoveryRun{
		RunType:     models.RunTypeDestination,
		Destination: opts.Destination,
		Categories:  opts.Categories,
		Sources:     names,
		Criteria:    critJSON,
		Status:      models.RunRunning,
		Progress:    make(map[string]models.CategoryProgress, len(opts.Categories)),
		Errors:      []models.RunError{},
		StartedAt:   s.now().UTC(),
	}
	for _, c := range opts.Categories {
		run.Progress[c] = models.CategoryProgress{}
	}
	return run
}

func (s *Service) bump(run *models.DiscoveryRun, category string, fn func(*models.CategoryProgress)) {
	p := run.Progress[category]
	fn(&p)
	run.Progress[category] = p
}

type fetchJob struct {
	idx      int
	category string
	adapter  sources.Adapter
}

type fetchResult struct {
	category   string
	source     string
	candidates []models.Candidate
	err        error
}

// fetchAll queries every category/source pair with bounded concurrency.
// Results are returned in job order so dedup sees a stable input, with
// ratings already on the 0-5 scale.
func (s *Service) fetchAll(ctx context.Context, run *models.DiscoveryRun, opts DiscoveryOptions, adapters []sources.Adapter, srcCfg aggregator.Config) []models.Candidate {
	var jobs []fetchJob
	for _, cat := range opts.Categories {
		for _, a := range adapters {
			jobs = append(jobs, fetchJob{idx: len(jobs), category: cat, adapter: a})
		}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.LimitPerQuery
	}
	base := sources.Query{Destination: opts.Destination, Limit: limit}
	if d, ok := geography.LookupDestination(s.cfg.Destinations, opts.Destination); ok {
		lat, lng := d.Center.Lat, d.Center.Lng
		base.Lat, base.Lng = &lat, &lng
		base.RadiusMeters = d.RadiusMeters
	}

	results := make([]fetchResult, len(jobs))
	jobCh := make(chan fetchJob)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.FetchWorkers && w < len(jobs); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				q := base
				q.Category = j.category
				cands, err := j.adapter.FetchCandidates(ctx, q)
				results[j.idx] = fetchResult{category: j.category, source: j.adapter.Name(), candidates: cands, err: err}
			}
		}()
	}
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()

	var out []models.Candidate
	for _, r := range results {
		if r.err != nil {
			run.Failed++
			run.AddError(r.category, r.source, r.err.Error(), s.now().UTC())
			s.bump(run, r.category, func(p *models.CategoryProgress) {
				p.Failed++
				p.Status = "partial"
			})
			s.log.Warn(ctx, "source fetch failed",
				logging.String("source", r.source),
				logging.String("category", r.category),
				logging.Error(r.err))
			continue
		}
		for _, c := range r.candidates {
			if c.Source == "" {
				c.Source = r.source
			}
			if c.Category == "" || c.Category == "unknown" {
				c.Category = r.category
			}
			if c.Rating != nil {
				raw, norm := *c.Rating, srcCfg.NormalizeRating(c.Source, *c.Rating)
				c.SourceRating, c.Rating = &raw, &norm
			}
			out = append(out, c)
		}
		s.bump(run, r.category, func(p *models.CategoryProgress) { p.Found += len(r.candidates) })
	}
	return out
}

type persisted struct {
	ids     []int64
	created []events.POICreated
	changed []*classification.Result
}

// persist writes the whole batch in one unit of work. Nothing on run is
// stored here; the caller records the outcome once the transaction ends.
func (s *Service) persist(ctx context.Context, run *models.DiscoveryRun, results []dedup.Result, srcCfg aggregator.Config) (*persisted, error) {
	uow, err := s.uows.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	now := s.now().UTC()
	out := &persisted{}
	slugs := make(map[string]int)
	var created, updated int
	progress := make(map[string]models.CategoryProgress)

	for _, r := range results {
		c := r.Candidate
		var (
			id  int64
			poi *models.POI
		)
		switch r.Action {
		case dedup.ActionUpdate:
			existing, err := uow.LockPOICtx(ctx, r.POIID)
			if err != nil {
				return nil, err
			}
			applyCandidate(existing, c, now)
			if err := uow.UpdatePOIDetailsCtx(ctx, existing); err != nil {
				return nil, err
			}
			id, poi = existing.ID, existing
			updated++
			p := progress[c.Category]
			p.Updated++
			progress[c.Category] = p
		default:
			poi = newPOI(c, uniqueSlug(slugs, c.Name), run.Destination, now)
			if id, err = uow.CreatePOICtx(ctx, poi); err != nil {
				return nil, err
			}
			poi.ID = id
			created++
			p := progress[c.Category]
			p.Created++
			progress[c.Category] = p
		}

		if err := uow.UpsertDataSourceCtx(ctx, dataSource(id, c, now)); err != nil {
			return nil, err
		}

		res, err := s.classifier.Classify(ctx, id, classification.ClassifyOptions{
			UoW:              uow,
			RefreshRelevance: true,
			Rankings:         rankingsFor(c, srcCfg),
			Now:              now,
		})
		if err != nil {
			return nil, err
		}
		out.ids = append(out.ids, id)
		if res.TierChanged {
			out.changed = append(out.changed, res)
		}
		if r.Action != dedup.ActionUpdate {
			out.created = append(out.created, events.POICreated{
				Base:       events.Base{Ts: now, ID: id},
				RunID:      run.ID,
				ExternalID: c.ExternalID,
				Name:       poi.Name,
				Slug:       poi.Slug,
				Category:   poi.Category,
				City:       poi.City,
				Tier:       int(res.NewTier),
			})
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	run.Created, run.Updated = created, updated
	for cat, p := range progress {
		s.bump(run, cat, func(cp *models.CategoryProgress) {
			cp.Created += p.Created
			cp.Updated += p.Updated
		})
	}
	return out, nil
}

func (s *Service) fail(ctx context.Context, run *models.DiscoveryRun, start time.Time, err error) (*Summary, error) {
	metrics.RecordRollback("discovery")
	now := s.now().UTC()
	run.Status = models.RunFailed
	run.CompletedAt = &now
	run.Created, run.Updated = 0, 0
	run.AddError("", "", err.Error(), now)
	for cat, p := range run.Progress {
		p.Created, p.Updated = 0, 0
		p.Status = string(models.RunFailed)
		run.Progress[cat] = p
	}
	if uerr := s.runs.UpdateDiscoveryRunCtx(ctx, run); uerr != nil {
		s.log.Error(ctx, "failed to record failed run", uerr)
	}
	metrics.RecordDiscoveryRun(string(run.Status), 0, 0, run.Skipped, run.Failed)
	s.publish(ctx, events.DiscoveryFailed{
		Base:        events.Base{Ts: now, ID: run.ID},
		Destination: run.Destination,
		Reason:      err.Error(),
	})
	s.log.Error(ctx, "discovery failed", err)
	return summarize(run, time.Since(start)), err
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.EventsPublishTimeoutDefault)
	defer cancel()
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn(ctx, "event publish failed",
			logging.String("event_type", ev.Type()),
			logging.Error(err))
	}
}

func summarize(run *models.DiscoveryRun, d time.Duration) *Summary {
	return &Summary{
		RunID:       run.ID,
		Destination: run.Destination,
		Status:      run.Status,
		Found:       run.Found,
		Created:     run.Created,
		Updated:     run.Updated,
		Skipped:     run.Skipped,
		Failed:      run.Failed,
		Errors:      run.Errors,
		Progress:    run.Progress,
		Duration:    d,
	}
}

// uniqueSlug slugifies name, suffixing -2, -3, ... on collisions within
// the batch.
func uniqueSlug(seen map[string]int, name string) string {
	base := utils.Slugify(name)
	if base == "" {
		base = "poi"
	}
	seen[base]++
	if n := seen[base]; n > 1 {
		return fmt.Sprintf("%s-%d", base, n)
	}
	return base
}
