package relevance

import (
	"sort"
	"strings"

	"poi-tiering/pkg/config"
	"poi-tiering/pkg/geography"
)

// RankingStep maps "position <= MaxPosition" to Score.
type RankingStep struct {
	MaxPosition int
	Score       float64
}

// Config allows tuning the scorer without code changes.
type Config struct {
	CategoryWeight     float64
	RankingWeight      float64
	LocationWeight     float64
	VerificationWeight float64

	Categories      map[string]float64
	UnknownCategory float64

	RankingSteps []RankingStep
	// RankingFloor scores positions beyond the last step.
	RankingFloor float64

	// LocationConstant is the location boost used unless DistanceBased
	// is set and a destination centre is known.
	LocationConstant float64
	DistanceBased    bool
	Destinations     map[string]geography.Destination

	VerifiedScore   float64
	UnverifiedScore float64
}

func DefaultRelevanceConfig() Config {
	return Config{
		CategoryWeight:     0.4,
		RankingWeight:      0.4,
		LocationWeight:     0.1,
		VerificationWeight: 0.1,
		Categories: map[string]float64{
			"historical":    9.5,
			"monument":      9.5,
			"museum":        9.0,
			"landmark":      9.0,
			"attraction":    9.0,
			"beach":         8.5,
			"park":          8.0,
			"nature":        8.0,
			"viewpoint":     8.0,
			"theme_park":    8.0,
			"church":        7.5,
			"market":        7.0,
			"restaurant":    6.0,
			"bar":           5.5,
			"cafe":          5.5,
			"shopping":      5.0,
			"accommodation": 4.5,
			"sports":        4.0,
			"services":      3.0,
			"healthcare":    2.0,
		},
		UnknownCategory: 5.0,
		RankingSteps: []RankingStep{
			{MaxPosition: 10, Score: 10},
			{MaxPosition: 25, Score: 8},
			{MaxPosition: 50, Score: 6},
			{MaxPosition: 100, Score: 4},
		},
		RankingFloor:     2,
		LocationConstant: 5.0,
		Destinations:     geography.DefaultDestinations,
		VerifiedScore:    10,
		UnverifiedScore:  5,
	}
}

// ApplyProfile returns a copy of c with the profile's overrides.
func (c Config) ApplyProfile(p *config.Profile) Config {
	out := c
	out.Categories = make(map[string]float64, len(c.Categories))
	for k, v := range c.Categories {
		out.Categories[k] = v
	}
	out.Destinations = make(map[string]geography.Destination, len(c.Destinations))
	for k, v := range c.Destinations {
		out.Destinations[k] = v
	}
	out.RankingSteps = append([]RankingStep(nil), c.RankingSteps...)
	if p == nil {
		return out
	}

	for k, v := range p.Categories {
		out.Categories[k] = v
	}
	if len(p.RankingSteps) > 0 {
		out.RankingSteps = out.RankingSteps[:0]
		for _, s := range p.RankingSteps {
			out.RankingSteps = append(out.RankingSteps, RankingStep{MaxPosition: s.MaxPosition, Score: s.Score})
		}
		sort.Slice(out.RankingSteps, func(i, j int) bool {
			return out.RankingSteps[i].MaxPosition < out.RankingSteps[j].MaxPosition
		})
	}
	if v := p.LocationConstant(); v != nil {
		out.LocationConstant = *v
	}
	if p.Location != nil && p.Location.DistanceBased != nil {
		out.DistanceBased = *p.Location.DistanceBased
	}
	if p.Verification != nil {
		if p.Verification.Verified != nil {
			out.VerifiedScore = *p.Verification.Verified
		}
		if p.Verification.Unverified != nil {
			out.UnverifiedScore = *p.Verification.Unverified
		}
	}
	for name, d := range p.Destinations {
		out.Destinations[strings.ToLower(name)] = geography.Destination{
			Name:         name,
			Country:      d.Country,
			Center:       geography.Point{Lat: d.Lat, Lng: d.Lng},
			RadiusMeters: d.RadiusMeters,
		}
	}
	return out
}
