package models

import (
	"time"

	"poi-tiering/internal/constants"
)

// Tier is the update-priority class of a POI. Tier 1 is refreshed most often.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
	Tier4 Tier = 4
)

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool { return t >= Tier1 && t <= Tier4 }

// UpdateInterval is how long a POI of this tier waits before its next refresh.
func (t Tier) UpdateInterval() time.Duration {
	switch t {
	case Tier1:
		return constants.Tier1UpdateInterval
	case Tier2:
		return constants.Tier2UpdateInterval
	case Tier3:
		return constants.Tier3UpdateInterval
	default:
		return constants.Tier4UpdateInterval
	}
}

// NextUpdateAt returns the refresh deadline for a POI classified at now.
func (t Tier) NextUpdateAt(now time.Time) time.Time { return now.Add(t.UpdateInterval()) }

type POI struct {
	ID               int64      `json:"id" db:"id"`
	ExternalID       *string    `json:"external_id,omitempty" db:"external_id"`
	Name             string     `json:"name" db:"name"`
	Slug             string     `json:"slug" db:"slug"`
	Category         string     `json:"category" db:"category"`
	Address          string     `json:"address,omitempty" db:"address"`
	City             string     `json:"city,omitempty" db:"city"`
	Country          string     `json:"country,omitempty" db:"country"`
	Lat              *float64   `json:"latitude,omitempty" db:"latitude"`
	Lng              *float64   `json:"longitude,omitempty" db:"longitude"`
	Phone            string     `json:"phone,omitempty" db:"phone"`
	Website          string     `json:"website,omitempty" db:"website"`
	PriceLevel       *int       `json:"price_level,omitempty" db:"price_level"`
	ReviewCount      int64      `json:"review_count" db:"review_count"`
	AverageRating    float64    `json:"average_rating" db:"average_rating"`
	TouristRelevance float64    `json:"tourist_relevance" db:"tourist_relevance"`
	BookingFrequency int64      `json:"booking_frequency" db:"booking_frequency"`
	POIScore         float64    `json:"poi_score" db:"poi_score"`
	Tier             Tier       `json:"tier" db:"tier"`
	Verified         bool       `json:"verified" db:"verified"`
	Active           bool       `json:"active" db:"active"`
	LastScrapedAt    *time.Time `json:"last_scraped_at,omitempty" db:"last_scraped_at"`
	NextUpdateAt     *time.Time `json:"next_update_at,omitempty" db:"next_update_at"`
	LastClassifiedAt *time.Time `json:"last_classified_at,omitempty" db:"last_classified_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (p *POI) HasCoordinates() bool { return p.Lat != nil && p.Lng != nil }

// POIScoreHistory is an append-only record of one committed classification.
type POIScoreHistory struct {
	ID               int64     `json:"id" db:"id"`
	POIID            int64     `json:"poi_id" db:"poi_id"`
	POIScore         float64   `json:"poi_score" db:"poi_score"`
	ReviewCount      int64     `json:"review_count" db:"review_count"`
	AverageRating    float64   `json:"average_rating" db:"average_rating"`
	TouristRelevance float64   `json:"tourist_relevance" db:"tourist_relevance"`
	BookingFrequency int64     `json:"booking_frequency" db:"booking_frequency"`
	OldTier          *Tier     `json:"old_tier,omitempty" db:"old_tier"`
	NewTier          Tier      `json:"new_tier" db:"new_tier"`
	CalculatedAt     time.Time `json:"calculated_at" db:"calculated_at"`
}

// ScrapeStatus records the outcome of the last fetch from one source.
type ScrapeStatus string

const (
	ScrapeSuccess  ScrapeStatus = "success"
	ScrapeFailed   ScrapeStatus = "failed"
	ScrapeNotFound ScrapeStatus = "not_found"
	ScrapeSkipped  ScrapeStatus = "skipped"
)

// POIDataSource caches the metrics one source reported for one POI.
// Rows are keyed by (POIID, SourceName) and overwritten on every fetch.
type POIDataSource struct {
	ID            int64        `json:"id" db:"id"`
	POIID         int64        `json:"poi_id" db:"poi_id"`
	SourceName    string       `json:"source_name" db:"source_name"`
	SourceID      string       `json:"source_id,omitempty" db:"source_id"`
	Rating        *float64     `json:"rating,omitempty" db:"rating"`
	ReviewCount   *int64       `json:"review_count,omitempty" db:"review_count"`
	PriceLevel    *int         `json:"price_level,omitempty" db:"price_level"`
	Ranking       *int         `json:"ranking,omitempty" db:"ranking"`
	RawPayload    []byte       `json:"raw_payload,omitempty" db:"raw_payload"`
	LastScrapedAt time.Time    `json:"last_scraped_at" db:"last_scraped_at"`
	ScrapeStatus  ScrapeStatus `json:"scrape_status" db:"scrape_status"`
}

// TierCount is one row of the per-tier summary.
type TierCount struct {
	Tier  Tier  `json:"tier"`
	Count int64 `json:"count"`
}
