package classification

import (
	"context"
	"sync"
	"time"

	"poi-tiering/internal/aggregator"
	"poi-tiering/internal/constants"
	"poi-tiering/internal/domain"
	"poi-tiering/internal/models"
	"poi-tiering/internal/relevance"
	"poi-tiering/pkg/config"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/events"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/metrics"
)

// Steps reported in ClassificationError.
const (
	StepBegin        = "begin"
	StepLock         = "lock"
	StepAggregate    = "aggregate"
	StepRelevance    = "relevance"
	StepBookings     = "bookings"
	StepWritePOI     = "write_poi"
	StepWriteHistory = "write_history"
	StepCommit       = "commit"
)

// ClassifyOptions selects what a classification refreshes before scoring.
type ClassifyOptions struct {
	// UoW is an external unit of work. When set, Classify neither commits,
	// rolls back nor publishes; the caller does.
	UoW domain.UnitOfWork

	Aggregate        bool
	RefreshRelevance bool
	RefreshBookings  bool

	// Sources limits aggregation to these registered sources. Empty uses
	// the aggregator's configured selection.
	Sources []string

	// Rankings, when non-nil, are used for relevance instead of the
	// cached source rows.
	Rankings []aggregator.Ranking

	// Seasonal applies the seasonal multiplier to refreshed relevance.
	Seasonal bool
	Weather  relevance.Weather

	// Now overrides the clock; zero means time.Now.
	Now time.Time
}

// Result is the outcome of one classification.
type Result struct {
	POIID        int64       `json:"poi_id"`
	OldTier      models.Tier `json:"old_tier"`
	NewTier      models.Tier `json:"new_tier"`
	POIScore     float64     `json:"poi_score"`
	Relevance    float64     `json:"tourist_relevance"`
	ReviewCount  int64       `json:"review_count"`
	Rating       float64     `json:"average_rating"`
	Bookings     int64       `json:"booking_frequency"`
	TierChanged  bool        `json:"tier_changed"`
	Validated    bool        `json:"validated"`
	Sources      []string    `json:"sources,omitempty"`
	NextUpdateAt time.Time   `json:"next_update_at"`
}

// TierChangedEvent builds the event announcing r's tier change.
func (r *Result) TierChangedEvent(at time.Time) events.POITierChanged {
	return events.POITierChanged{
		Base:     events.Base{Ts: at, ID: r.POIID},
		OldTier:  int(r.OldTier),
		NewTier:  int(r.NewTier),
		POIScore: r.POIScore,
		NextAt:   r.NextUpdateAt,
	}
}

// Engine computes POI scores and tiers and persists them with their
// history row in one transaction.
type Engine struct {
	cfg      Config
	uows     domain.UnitOfWorkFactory
	repo     domain.POIRepository
	bookings domain.BookingCounter
	pub      events.Publisher
	log      *logging.ComponentLogger
	now      func() time.Time

	mu         sync.RWMutex
	agg        *aggregator.Aggregator
	scorer     *relevance.Scorer
	aggBase    aggregator.Config
	scorerBase relevance.Config
}

// Deps are the collaborators of an Engine. Aggregator and Bookings may be
// nil; the matching refresh options are then no-ops.
type Deps struct {
	UoW        domain.UnitOfWorkFactory
	Repo       domain.POIRepository
	Aggregator *aggregator.Aggregator
	Scorer     *relevance.Scorer
	Bookings   domain.BookingCounter
	Publisher  events.Publisher
	Logger     *logging.Logger
}

func NewEngine(cfg Config, d Deps) *Engine {
	log := d.Logger
	if log == nil {
		log = logging.NewNop()
	}
	pub := d.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	scorer := d.Scorer
	if scorer == nil {
		scorer = relevance.NewDefault()
	}
	e := &Engine{
		cfg:        cfg,
		uows:       d.UoW,
		repo:       d.Repo,
		bookings:   d.Bookings,
		pub:        pub,
		log:        log.WithComponent("classification"),
		now:        time.Now,
		agg:        d.Aggregator,
		scorer:     scorer,
		scorerBase: scorer.Config(),
	}
	if d.Aggregator != nil {
		e.aggBase = d.Aggregator.Config()
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// SetClock replaces the engine's clock; used by tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ApplyProfile re-derives the aggregator and relevance settings from the
// compiled-in defaults plus p.
func (e *Engine) ApplyProfile(p *config.Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scorer = relevance.NewScorer(e.scorerBase.ApplyProfile(p))
	if e.agg != nil {
		e.agg = e.agg.WithConfig(e.aggBase.ApplyProfile(p))
	}
}

func (e *Engine) components() (*aggregator.Aggregator, *relevance.Scorer) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.agg, e.scorer
}

// Classify recomputes a POI's score and tier.
func (e *Engine) Classify(ctx context.Context, poiID int64, opts ClassifyOptions) (*Result, error) {
	start := time.Now()
	ctx = logging.WithPOIID(ctx, poiID)
	now := opts.Now
	if now.IsZero() {
		now = e.now()
	}
	now = now.UTC()

	uow, owned := opts.UoW, opts.UoW == nil
	if owned {
		var err error
		if uow, err = e.uows.Begin(ctx); err != nil {
			err = errs.NewClassification(poiID, StepBegin, err)
			metrics.RecordClassification(0, time.Since(start), err)
			return nil, err
		}
		defer uow.Rollback()
	}

	res, err := e.classify(ctx, uow, poiID, opts, now)
	if err == nil && owned {
		if cerr := uow.Commit(); cerr != nil {
			err = errs.NewClassification(poiID, StepCommit, cerr)
		}
	}
	if err != nil {
		if owned {
			_ = uow.Rollback()
			metrics.RecordRollback("classify")
		}
		metrics.RecordClassification(0, time.Since(start), err)
		e.log.Error(ctx, "classification failed", err)
		return nil, err
	}

	metrics.RecordClassification(int(res.NewTier), time.Since(start), nil)
	if res.TierChanged {
		metrics.RecordTierTransition(int(res.OldTier), int(res.NewTier))
		if owned {
			e.publish(ctx, res.TierChangedEvent(now))
		}
	}
	e.log.Debug(ctx, "poi classified",
		logging.Int("tier", int(res.NewTier)),
		logging.Float64("poi_score", res.POIScore),
		logging.Bool("tier_changed", res.TierChanged))
	return res, nil
}

func (e *Engine) classify(ctx context.Context, uow domain.UnitOfWork, poiID int64, opts ClassifyOptions, now time.Time) (*Result, error) {
	poi, err := uow.LockPOICtx(ctx, poiID)
	if err != nil {
		return nil, errs.NewClassification(poiID, StepLock, err)
	}
	agg, scorer := e.components()
	// A POI that was never classified has no previous tier.
	firstTime := poi.LastClassifiedAt == nil
	res := &Result{POIID: poiID}
	if !firstTime {
		res.OldTier = poi.Tier
	}

	var rankings []aggregator.Ranking
	if opts.Aggregate && agg != nil {
		ar, aerr := agg.WithSources(opts.Sources).Aggregate(ctx, uow, poi)
		switch {
		case aerr == nil:
			if ar.Rating != nil {
				poi.AverageRating = *ar.Rating
			}
			if ar.ReviewCount != nil {
				poi.ReviewCount = *ar.ReviewCount
			}
			poi.LastScrapedAt = &now
			res.Validated = ar.Validated
			res.Sources = ar.Usable
			rankings = ar.Rankings
		case errs.Is(aerr, errs.ErrInsufficientSources):
			e.log.Warn(ctx, "no usable sources, keeping stored metrics")
		default:
			return nil, errs.NewClassification(poiID, StepAggregate, aerr)
		}
	}

	if opts.RefreshRelevance {
		if opts.Rankings != nil && !opts.Aggregate {
			rankings = opts.Rankings
		} else if !opts.Aggregate && e.repo != nil {
			if rankings, err = e.storedRankings(ctx, poiID, agg); err != nil {
				return nil, errs.NewClassification(poiID, StepRelevance, err)
			}
		}
		rel := scorer.Score(relevance.Input{
			Category:    poi.Category,
			Rankings:    rankings,
			Verified:    poi.Verified,
			Lat:         poi.Lat,
			Lng:         poi.Lng,
			Destination: poi.City,
		})
		if opts.Seasonal {
			rel = relevance.AdjustForSeason(rel, poi.Category, now)
		}
		if opts.Weather != relevance.WeatherUnknown {
			rel = relevance.AdjustForWeather(rel, poi.Category, opts.Weather)
		}
		poi.TouristRelevance = rel
	}

	if opts.RefreshBookings && e.bookings != nil {
		n, berr := e.bookings.CountBookings(ctx, poiID, now.Add(-e.cfg.BookingWindow))
		if berr != nil {
			return nil, errs.NewClassification(poiID, StepBookings, berr)
		}
		poi.BookingFrequency = n
	}

	score, tier := e.cfg.Evaluate(poi.ReviewCount, poi.AverageRating, poi.TouristRelevance, poi.BookingFrequency)
	next := tier.NextUpdateAt(now)

	poi.POIScore = score
	poi.Tier = tier
	poi.NextUpdateAt = &next
	poi.LastClassifiedAt = &now
	if err := uow.UpdatePOIClassificationCtx(ctx, poi); err != nil {
		return nil, errs.NewClassification(poiID, StepWritePOI, err)
	}

	h := &models.POIScoreHistory{
		POIID:            poiID,
		POIScore:         score,
		ReviewCount:      poi.ReviewCount,
		AverageRating:    poi.AverageRating,
		TouristRelevance: poi.TouristRelevance,
		BookingFrequency: poi.BookingFrequency,
		NewTier:          tier,
		CalculatedAt:     now,
	}
	if res.OldTier.Valid() {
		old := res.OldTier
		h.OldTier = &old
	}
	if err := uow.InsertScoreHistoryCtx(ctx, h); err != nil {
		return nil, errs.NewClassification(poiID, StepWriteHistory, err)
	}

	res.NewTier = tier
	res.POIScore = score
	res.Relevance = poi.TouristRelevance
	res.ReviewCount = poi.ReviewCount
	res.Rating = poi.AverageRating
	res.Bookings = poi.BookingFrequency
	res.TierChanged = !firstTime && tier != res.OldTier
	res.NextUpdateAt = next
	return res, nil
}

// storedRankings rebuilds rankings from the cached source rows.
func (e *Engine) storedRankings(ctx context.Context, poiID int64, agg *aggregator.Aggregator) ([]aggregator.Ranking, error) {
	rows, err := e.repo.ListDataSourcesCtx(ctx, poiID)
	if err != nil {
		return nil, err
	}
	cfg := aggregator.DefaultAggregatorConfig()
	if agg != nil {
		cfg = agg.Config()
	}
	var out []aggregator.Ranking
	for _, ds := range rows {
		if ds.ScrapeStatus != models.ScrapeSuccess || ds.Ranking == nil || *ds.Ranking <= 0 {
			continue
		}
		out = append(out, aggregator.Ranking{Source: ds.SourceName, Position: *ds.Ranking, Weight: cfg.Weight(ds.SourceName)})
	}
	return out, nil
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.EventsPublishTimeoutDefault)
	defer cancel()
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.log.Warn(ctx, "event publish failed",
			logging.String("event_type", ev.Type()),
			logging.Error(err))
	}
}

// BatchResult summarises a BatchClassify call.
type BatchResult struct {
	Results []*Result       `json:"results"`
	Failed  map[int64]error `json:"-"`
}

// Errors returns the failure messages keyed by POI id.
func (b *BatchResult) Errors() map[int64]string {
	out := make(map[int64]string, len(b.Failed))
	for id, err := range b.Failed {
		out[id] = err.Error()
	}
	return out
}

// BatchClassify classifies each POI in its own transaction. A failure is
// recorded against its id and does not affect the others.
func (e *Engine) BatchClassify(ctx context.Context, ids []int64, opts ClassifyOptions) *BatchResult {
	opts.UoW = nil
	out := &BatchResult{Failed: make(map[int64]error)}
	for _, id := range ids {
		if ctx.Err() != nil {
			out.Failed[id] = ctx.Err()
			continue
		}
		res, err := e.Classify(ctx, id, opts)
		if err != nil {
			out.Failed[id] = err
			continue
		}
		out.Results = append(out.Results, res)
	}
	if len(out.Failed) > 0 {
		e.log.Warn(ctx, "batch classification finished with failures",
			logging.Int("succeeded", len(out.Results)),
			logging.Int("failed", len(out.Failed)))
	}
	return out
}

// GetPOIsForUpdate returns active POIs of tier whose refresh is due,
// oldest deadline first. limit <= 0 uses the configured default.
func (e *Engine) GetPOIsForUpdate(ctx context.Context, tier models.Tier, limit int) ([]models.POI, error) {
	if !tier.Valid() {
		return nil, errs.NewValidation("classification.GetPOIsForUpdate", "tier must be 1-4", nil)
	}
	if limit <= 0 {
		limit = e.cfg.DefaultBatchLimit
	}
	return e.repo.ListPOIsDueForUpdateCtx(ctx, tier, e.now().UTC(), limit)
}

// TierStats counts active POIs per tier. Every tier is present.
type TierStats struct {
	Tiers []models.TierCount `json:"tiers"`
	Total int64              `json:"total"`
}

func (e *Engine) TierStats(ctx context.Context) (*TierStats, error) {
	counts, err := e.repo.CountPOIsByTierCtx(ctx)
	if err != nil {
		return nil, err
	}
	byTier := make(map[models.Tier]int64, len(counts))
	for _, c := range counts {
		byTier[c.Tier] = c.Count
	}
	st := &TierStats{}
	for t := models.Tier1; t <= models.Tier4; t++ {
		st.Tiers = append(st.Tiers, models.TierCount{Tier: t, Count: byTier[t]})
		st.Total += byTier[t]
	}
	return st, nil
}
