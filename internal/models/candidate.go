package models

// Candidate is a POI as reported by a single source before it is matched
// against stored data. Optional metrics are nil when the source did not
// report them. Rating is on the 0-5 scale once discovery has collected the
// candidate; SourceRating keeps the value on the source's own scale.
type Candidate struct {
	Source      string   `json:"source"`
	ExternalID  string   `json:"external_id,omitempty"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Address     string   `json:"address,omitempty"`
	City        string   `json:"city,omitempty"`
	Country     string   `json:"country,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Website     string   `json:"website,omitempty"`
	Lat         *float64 `json:"latitude,omitempty"`
	Lng         *float64 `json:"longitude,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int64   `json:"review_count,omitempty"`
	PriceLevel  *int     `json:"price_level,omitempty"`
	Ranking     *int     `json:"ranking,omitempty"`
	Raw         []byte   `json:"-"`

	SourceRating *float64 `json:"-"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (c *Candidate) HasCoordinates() bool { return c.Lat != nil && c.Lng != nil }

// Reviews returns the review count, or 0 when unknown.
func (c *Candidate) Reviews() int64 {
	if c.ReviewCount == nil {
		return 0
	}
	return *c.ReviewCount
}

// SourceMetrics is what a source reported for a POI during cross-validation.
type SourceMetrics struct {
	Source      string
	SourceID    string
	Name        string
	Rating      float64
	ReviewCount int64
	PriceLevel  *int
	Ranking     *int
	Raw         []byte
}
