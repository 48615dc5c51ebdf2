package aggregator

import (
	"context"
	"math"
	"time"

	"poi-tiering/internal/domain"
	"poi-tiering/internal/models"
	"poi-tiering/internal/sources"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/utils"
)

// Ranking is the best list position one source gave a POI.
type Ranking struct {
	Source   string
	Position int
	Weight   float64
}

// Result is the cross-validated view of a POI's metrics. Rating and
// ReviewCount are nil when no usable source reported them.
type Result struct {
	Rating      *float64
	ReviewCount *int64
	Validated   bool
	Usable      []string
	Metrics     []models.SourceMetrics
	Rankings    []Ranking
	Statuses    map[string]models.ScrapeStatus
}

// Aggregator cross-validates a POI against the enabled sources.
type Aggregator struct {
	cfg      Config
	registry *sources.Registry
	now      func() time.Time
	log      *logging.ComponentLogger
}

func New(cfg Config, registry *sources.Registry, log *logging.Logger) *Aggregator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Aggregator{
		cfg:      cfg,
		registry: registry,
		now:      time.Now,
		log:      log.WithComponent("aggregator"),
	}
}

func (a *Aggregator) Config() Config { return a.cfg }

// WithSources returns an aggregator limited to names. Empty names keeps the
// configured selection.
func (a *Aggregator) WithSources(names []string) *Aggregator {
	if len(names) == 0 {
		return a
	}
	cfg := a.cfg
	cfg.Enabled = append([]string(nil), names...)
	return a.WithConfig(cfg)
}

// WithConfig returns an aggregator over the same sources using cfg.
func (a *Aggregator) WithConfig(cfg Config) *Aggregator {
	cp := *a
	cp.cfg = cfg
	return &cp
}

// Aggregate queries each enabled source for poi, picks the best matching
// result per source and combines them. Each source outcome is written as a
// POIDataSource row through uow when uow is non-nil. A failing source is
// logged and excluded. When no source is usable the returned error is
// ErrInsufficientSources and the result leaves metrics nil.
func (a *Aggregator) Aggregate(ctx context.Context, uow domain.UnitOfWork, poi *models.POI) (*Result, error) {
	adapters, err := a.registry.Select(a.cfg.Enabled)
	if err != nil {
		return nil, errs.NewValidation("aggregator.Aggregate", "sources", err)
	}
	var metrics []models.SourceMetrics
	statuses := make(map[string]models.ScrapeStatus)

	for _, adapter := range adapters {
		name := adapter.Name()
		m, status, err := a.fetch(ctx, adapter, poi)
		statuses[name] = status
		if err != nil {
			a.log.Warn(ctx, "source excluded from cross-validation",
				logging.String("source", name),
				logging.Int64("poi_id", poi.ID),
				logging.Error(err))
		}
		if uow != nil && poi.ID != 0 {
			if werr := uow.UpsertDataSourceCtx(ctx, a.dataSource(poi.ID, name, m, status)); werr != nil {
				return nil, werr
			}
		}
		if m != nil {
			metrics = append(metrics, *m)
		}
	}

	res := a.Combine(metrics)
	res.Statuses = statuses
	if len(res.Usable) == 0 {
		return res, errs.ErrInsufficientSources
	}
	return res, nil
}

func (a *Aggregator) fetch(ctx context.Context, adapter sources.Adapter, poi *models.POI) (*models.SourceMetrics, models.ScrapeStatus, error) {
	q := sources.Query{
		Destination: poi.City,
		Category:    poi.Category,
		Name:        poi.Name,
		Lat:         poi.Lat,
		Lng:         poi.Lng,
		Limit:       a.cfg.CandidatesPerQuery,
	}
	cands, err := adapter.FetchCandidates(ctx, q)
	if err != nil {
		if errs.Is(err, errs.ErrBudgetExceeded) {
			return nil, models.ScrapeSkipped, err
		}
		return nil, models.ScrapeFailed, err
	}
	best, ok := BestMatch(poi.Name, cands, a.cfg.MinMatchSimilarity)
	if !ok {
		return nil, models.ScrapeNotFound, nil
	}
	return toMetrics(adapter.Name(), best), models.ScrapeSuccess, nil
}

func (a *Aggregator) dataSource(poiID int64, name string, m *models.SourceMetrics, status models.ScrapeStatus) *models.POIDataSource {
	ds := &models.POIDataSource{
		POIID:         poiID,
		SourceName:    name,
		LastScrapedAt: a.now().UTC(),
		ScrapeStatus:  status,
	}
	if m == nil {
		return ds
	}
	rating, reviews := m.Rating, m.ReviewCount
	ds.SourceID = m.SourceID
	ds.Rating = &rating
	ds.ReviewCount = &reviews
	ds.PriceLevel = m.PriceLevel
	ds.Ranking = m.Ranking
	ds.RawPayload = m.Raw
	return ds
}

// BestMatch returns the candidate whose name is most similar to name,
// provided the similarity is strictly above min.
func BestMatch(name string, cands []models.Candidate, min float64) (models.Candidate, bool) {
	bestIdx, bestSim := -1, min
	for i := range cands {
		if sim := utils.NameSimilarity(name, cands[i].Name); sim > bestSim {
			bestIdx, bestSim = i, sim
		}
	}
	if bestIdx < 0 {
		return models.Candidate{}, false
	}
	return cands[bestIdx], true
}

func toMetrics(source string, c models.Candidate) *models.SourceMetrics {
	m := &models.SourceMetrics{
		Source:     source,
		SourceID:   c.ExternalID,
		Name:       c.Name,
		PriceLevel: c.PriceLevel,
		Ranking:    c.Ranking,
		Raw:        c.Raw,
	}
	if c.Rating != nil {
		m.Rating = *c.Rating
	}
	m.ReviewCount = c.Reviews()
	return m
}

// Combine merges per-source metrics. The rating is the trust-weighted mean
// of non-zero ratings normalised to 0-5; the review count is the plain
// mean across usable sources.
func (a *Aggregator) Combine(metrics []models.SourceMetrics) *Result {
	res := &Result{Metrics: metrics}
	if len(metrics) == 0 {
		return res
	}

	var (
		weighted, weights float64
		reviews           int64
		best              = make(map[string]int)
	)
	for _, m := range metrics {
		res.Usable = append(res.Usable, m.Source)
		reviews += m.ReviewCount
		if m.Rating > 0 {
			w := a.cfg.Weight(m.Source)
			weighted += a.cfg.NormalizeRating(m.Source, m.Rating) * w
			weights += w
		}
		if m.Ranking != nil && *m.Ranking > 0 {
			if cur, ok := best[m.Source]; !ok || *m.Ranking < cur {
				best[m.Source] = *m.Ranking
			}
		}
	}

	if weights > 0 {
		r := round2(math.Min(weighted/weights, 5))
		res.Rating = &r
	}
	avg := int64(math.Round(float64(reviews) / float64(len(metrics))))
	res.ReviewCount = &avg
	res.Validated = len(metrics) >= a.cfg.MinValidSources

	for _, name := range res.Usable {
		if pos, ok := best[name]; ok {
			res.Rankings = append(res.Rankings, Ranking{Source: name, Position: pos, Weight: a.cfg.Weight(name)})
			delete(best, name)
		}
	}
	return res
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
