package aggregator

import (
	"poi-tiering/internal/constants"
	"poi-tiering/internal/sources"
	"poi-tiering/pkg/config"
)

// SourceConfig is the trust weight and native rating scale of one source.
type SourceConfig struct {
	Weight float64
	Scale  float64
}

// Config controls cross-validation. Defaults reflect how much each
// provider's ratings are trusted relative to Google.
type Config struct {
	Sources       map[string]SourceConfig
	UnknownSource SourceConfig
	// Enabled lists the registered sources queried during cross-validation,
	// in order. Empty means every registered source.
	Enabled []string

	MinMatchSimilarity float64
	MinValidSources    int
	CandidatesPerQuery int
}

func DefaultAggregatorConfig() Config {
	return Config{
		Sources: map[string]SourceConfig{
			sources.GooglePlacesName: {Weight: 1.0, Scale: 5},
			sources.TripAdvisorName:  {Weight: 0.9, Scale: 5},
			sources.TheForkName:      {Weight: 0.8, Scale: 5},
			sources.BookingName:      {Weight: 0.7, Scale: 10},
			sources.AirbnbName:       {Weight: 0.6, Scale: 5},
		},
		UnknownSource:      SourceConfig{Weight: 0.5, Scale: 5},
		MinMatchSimilarity: constants.AggregatorMinMatchSimilarity,
		MinValidSources:    constants.AggregatorMinValidSources,
		CandidatesPerQuery: 5,
	}
}

// ApplyProfile returns a copy of c with the profile's source overrides.
func (c Config) ApplyProfile(p *config.Profile) Config {
	out := c
	out.Sources = make(map[string]SourceConfig, len(c.Sources))
	for k, v := range c.Sources {
		out.Sources[k] = v
	}
	if p == nil {
		return out
	}
	for name, sp := range p.Sources {
		out.Sources[name] = SourceConfig{Weight: sp.Weight, Scale: sp.Scale}
	}
	return out
}

// Source returns the settings for name, falling back to UnknownSource.
func (c Config) Source(name string) SourceConfig {
	if sc, ok := c.Sources[name]; ok {
		return sc
	}
	return c.UnknownSource
}

// Weight is shorthand for Source(name).Weight.
func (c Config) Weight(name string) float64 { return c.Source(name).Weight }

// NormalizeRating converts a rating on the source's scale to 0-5.
func (c Config) NormalizeRating(name string, rating float64) float64 {
	scale := c.Source(name).Scale
	if scale == 10 {
		return rating / 2
	}
	return rating
}
