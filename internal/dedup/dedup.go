package dedup

import (
	"context"

	"poi-tiering/internal/constants"
	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/geography"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/utils"
)

// Action says what persistence should do with a deduplicated candidate.
type Action string

const (
	ActionNew    Action = "new"
	ActionUpdate Action = "update"
)

// Result is one surviving candidate. POIID is set for ActionUpdate.
type Result struct {
	Candidate models.Candidate
	Action    Action
	POIID     int64
	// MergedSources lists the sources of candidates folded into this one.
	MergedSources []string
}

// Stats counts what a Deduplicate call dropped.
type Stats struct {
	Input       int
	DuplicateID int
	Merged      int
}

// Lookup finds stored POIs by provider id. A missing POI is (nil, nil).
type Lookup interface {
	GetPOIByExternalIDCtx(ctx context.Context, externalID string) (*models.POI, error)
}

type Config struct {
	MaxDistanceMeters float64 // strictly closer than this to merge
	MinNameSimilarity float64 // strictly more similar than this to merge
}

func DefaultConfig() Config {
	return Config{
		MaxDistanceMeters: constants.DedupMaxDistanceMeters,
		MinNameSimilarity: constants.DedupMinNameSimilarity,
	}
}

type Deduplicator struct {
	cfg    Config
	lookup Lookup
	log    *logging.ComponentLogger
}

// New returns a deduplicator. lookup may be nil, in which case every
// surviving candidate is tagged new.
func New(cfg Config, lookup Lookup, log *logging.Logger) *Deduplicator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Deduplicator{cfg: cfg, lookup: lookup, log: log.WithComponent("dedup")}
}

// Deduplicate collapses candidates in input order. The first occurrence
// of a provider id wins; later candidates close to and named like an
// accepted one are merged into it; survivors are tagged new or update
// against stored POIs.
func (d *Deduplicator) Deduplicate(ctx context.Context, candidates []models.Candidate) ([]Result, Stats, error) {
	stats := Stats{Input: len(candidates)}
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Result, 0, len(candidates))

	for _, c := range candidates {
		if c.ExternalID != "" {
			if _, dup := seen[c.ExternalID]; dup {
				stats.DuplicateID++
				continue
			}
			seen[c.ExternalID] = struct{}{}
		}

		if i := d.findMatch(out, c); i >= 0 {
			out[i].Candidate = Merge(out[i].Candidate, c)
			out[i].MergedSources = append(out[i].MergedSources, c.Source)
			stats.Merged++
			d.log.Debug(ctx, "merged candidate",
				logging.String("name", c.Name),
				logging.String("into", out[i].Candidate.Name),
				logging.String("source", c.Source))
			continue
		}

		r := Result{Candidate: c, Action: ActionNew}
		if c.ExternalID != "" && d.lookup != nil {
			existing, err := d.lookup.GetPOIByExternalIDCtx(ctx, c.ExternalID)
			if err != nil {
				return nil, stats, errs.NewDB("dedup.Deduplicate", "lookup "+c.ExternalID, err)
			}
			if existing != nil {
				r.Action = ActionUpdate
				r.POIID = existing.ID
			}
		}
		out = append(out, r)
	}

	d.log.Info(ctx, "deduplicated candidates",
		logging.Int("input", stats.Input),
		logging.Int("output", len(out)),
		logging.Int("duplicate_ids", stats.DuplicateID),
		logging.Int("merged", stats.Merged))
	return out, stats, nil
}

// findMatch returns the index of the first accepted result c should merge
// into, or -1. Candidates without coordinates never match.
func (d *Deduplicator) findMatch(accepted []Result, c models.Candidate) int {
	if !c.HasCoordinates() {
		return -1
	}
	for i := range accepted {
		a := &accepted[i].Candidate
		if !a.HasCoordinates() {
			continue
		}
		if geography.Distance(*a.Lat, *a.Lng, *c.Lat, *c.Lng) >= d.cfg.MaxDistanceMeters {
			continue
		}
		if utils.NameSimilarity(a.Name, c.Name) > d.cfg.MinNameSimilarity {
			return i
		}
	}
	return -1
}

// Merge folds dup into keep. Ratings and review counts come from whichever
// record has more reviews; contact fields only fill gaps; coordinates are
// taken from dup only when keep has none.
func Merge(keep, dup models.Candidate) models.Candidate {
	if dup.Reviews() > keep.Reviews() {
		keep.Rating = dup.Rating
		keep.ReviewCount = dup.ReviewCount
	}
	if keep.Phone == "" {
		keep.Phone = dup.Phone
	}
	if keep.Website == "" {
		keep.Website = dup.Website
	}
	if keep.Address == "" {
		keep.Address = dup.Address
	}
	if keep.City == "" {
		keep.City = dup.City
	}
	if keep.Country == "" {
		keep.Country = dup.Country
	}
	if keep.PriceLevel == nil {
		keep.PriceLevel = dup.PriceLevel
	}
	if !keep.HasCoordinates() && dup.HasCoordinates() {
		keep.Lat, keep.Lng = dup.Lat, dup.Lng
	}
	return keep
}
