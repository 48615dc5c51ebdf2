package discovery

import (
	"strings"
	"time"

	"poi-tiering/internal/aggregator"
	"poi-tiering/internal/models"
	"poi-tiering/pkg/utils"
)

// newPOI maps a candidate onto a fresh, unclassified POI.
func newPOI(c models.Candidate, slug, destination string, now time.Time) *models.POI {
	p := &models.POI{
		Name:        strings.TrimSpace(c.Name),
		Slug:        slug,
		Category:    c.Category,
		Address:     c.Address,
		City:        c.City,
		Country:     c.Country,
		Lat:         c.Lat,
		Lng:         c.Lng,
		Phone:       c.Phone,
		Website:     utils.NormalizeURL(c.Website),
		PriceLevel:  c.PriceLevel,
		ReviewCount: c.Reviews(),
		Tier:        models.Tier4,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.City == "" {
		p.City = destination
	}
	if c.ExternalID != "" {
		id := c.ExternalID
		p.ExternalID = &id
	}
	if c.Rating != nil {
		p.AverageRating = *c.Rating
	}
	scraped := now
	p.LastScrapedAt = &scraped
	return p
}

// applyCandidate refreshes a stored POI with what discovery just saw.
// Empty candidate fields never blank stored values.
func applyCandidate(p *models.POI, c models.Candidate, now time.Time) {
	if c.Address != "" {
		p.Address = c.Address
	}
	if c.Phone != "" {
		p.Phone = c.Phone
	}
	if c.Website != "" && !utils.SameWebsite(p.Website, c.Website) {
		p.Website = utils.NormalizeURL(c.Website)
	}
	if c.HasCoordinates() {
		p.Lat, p.Lng = c.Lat, c.Lng
	}
	if c.PriceLevel != nil {
		p.PriceLevel = c.PriceLevel
	}
	if c.ReviewCount != nil {
		p.ReviewCount = *c.ReviewCount
	}
	if c.Rating != nil && *c.Rating > 0 {
		p.AverageRating = *c.Rating
	}
	scraped := now
	p.LastScrapedAt = &scraped
	p.UpdatedAt = now
}

// dataSource records what c's own source reported. A rating merged in from
// another source is not attributed to it.
func dataSource(poiID int64, c models.Candidate, now time.Time) *models.POIDataSource {
	return &models.POIDataSource{
		POIID:         poiID,
		SourceName:    c.Source,
		SourceID:      c.ExternalID,
		Rating:        c.SourceRating,
		ReviewCount:   c.ReviewCount,
		PriceLevel:    c.PriceLevel,
		Ranking:       c.Ranking,
		RawPayload:    c.Raw,
		LastScrapedAt: now,
		ScrapeStatus:  models.ScrapeSuccess,
	}
}

// rankingsFor returns the candidate's ranking as seen by relevance scoring.
// The slice is never nil so classification does not fall back to cached rows.
func rankingsFor(c models.Candidate, src aggregator.Config) []aggregator.Ranking {
	out := []aggregator.Ranking{}
	if c.Ranking != nil && *c.Ranking > 0 {
		out = append(out, aggregator.Ranking{Source: c.Source, Position: *c.Ranking, Weight: src.Weight(c.Source)})
	}
	return out
}
