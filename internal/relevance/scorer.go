package relevance

import (
	"math"
	"strings"
	"time"

	"poi-tiering/internal/aggregator"
	"poi-tiering/internal/constants"
	"poi-tiering/pkg/geography"
)

// Input is what the scorer needs to know about a POI.
type Input struct {
	Category    string
	Rankings    []aggregator.Ranking
	Verified    bool
	Lat, Lng    *float64
	Destination string
}

// Breakdown is the component scores behind one relevance value.
type Breakdown struct {
	Category     float64
	Ranking      float64
	Location     float64
	Verification float64
	Score        float64
}

// Scorer computes tourist relevance on a 0-10 scale.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer { return &Scorer{cfg: cfg} }
func NewDefault() *Scorer          { return NewScorer(DefaultRelevanceConfig()) }

func (s *Scorer) Config() Config { return s.cfg }

// Score returns the clamped, rounded relevance of in.
func (s *Scorer) Score(in Input) float64 { return s.Explain(in).Score }

// Explain returns the relevance of in along with its components.
func (s *Scorer) Explain(in Input) Breakdown {
	b := Breakdown{
		Category:     s.CategoryBase(in.Category),
		Ranking:      s.RankingBoost(in.Rankings),
		Location:     s.LocationBoost(in),
		Verification: s.cfg.UnverifiedScore,
	}
	if in.Verified {
		b.Verification = s.cfg.VerifiedScore
	}
	raw := b.Category*s.cfg.CategoryWeight +
		b.Ranking*s.cfg.RankingWeight +
		b.Location*s.cfg.LocationWeight +
		b.Verification*s.cfg.VerificationWeight
	b.Score = round2(clamp(raw))
	return b
}

// CategoryBase looks up the base score of a category.
func (s *Scorer) CategoryBase(category string) float64 {
	if v, ok := s.cfg.Categories[normalizeCategory(category)]; ok {
		return v
	}
	return s.cfg.UnknownCategory
}

// RankingBoost averages the weighted step score of each source's best
// position. No rankings scores 0.
func (s *Scorer) RankingBoost(rankings []aggregator.Ranking) float64 {
	var sum float64
	var n int
	for _, r := range rankings {
		if r.Position <= 0 {
			continue
		}
		sum += s.stepScore(r.Position) * r.Weight
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (s *Scorer) stepScore(pos int) float64 {
	for _, st := range s.cfg.RankingSteps {
		if pos <= st.MaxPosition {
			return st.Score
		}
	}
	return s.cfg.RankingFloor
}

// LocationBoost is the configured constant, or with DistanceBased set a
// linear falloff from 10 at the destination centre to 0 at its radius.
func (s *Scorer) LocationBoost(in Input) float64 {
	if !s.cfg.DistanceBased || in.Lat == nil || in.Lng == nil {
		return s.cfg.LocationConstant
	}
	dest, ok := geography.LookupDestination(s.cfg.Destinations, in.Destination)
	if !ok || dest.RadiusMeters <= 0 {
		return s.cfg.LocationConstant
	}
	d := geography.DistanceMeters(dest.Center, geography.Point{Lat: *in.Lat, Lng: *in.Lng})
	return clamp(constants.ScoreMax * (1 - d/dest.RadiusMeters))
}

// Weather is the coarse condition used for weather adjustment.
type Weather string

const (
	WeatherUnknown Weather = ""
	WeatherClear   Weather = "clear"
	WeatherCloudy  Weather = "cloudy"
	WeatherRain    Weather = "rain"
	WeatherStorm   Weather = "storm"
	WeatherSnow    Weather = "snow"
)

// Poor reports whether w keeps visitors indoors.
func (w Weather) Poor() bool {
	switch w {
	case WeatherRain, WeatherStorm, WeatherSnow:
		return true
	}
	return false
}

var (
	outdoorCategories = map[string]bool{
		"beach":      true, "park": true, "nature": true, "viewpoint": true,
		"theme_park": true, "ski": true, "sports": true, "market": true,
	}
	indoorCategories = map[string]bool{
		"museum": true, "shopping": true, "restaurant": true, "bar": true,
		"cafe":   true, "church": true,
	}
)

// SeasonalMultiplier is the demand factor of a category in month.
func SeasonalMultiplier(category string, month time.Month) float64 {
	switch normalizeCategory(category) {
	case "beach":
		if month >= time.June && month <= time.August {
			return 1.2
		}
		return 0.8
	case "ski":
		if month == time.December || month <= time.February {
			return 1.2
		}
		return 0.7
	}
	return 1.0
}

// WeatherMultiplier is the demand factor of a category under w.
func WeatherMultiplier(category string, w Weather) float64 {
	if !w.Poor() {
		return 1.0
	}
	c := normalizeCategory(category)
	switch {
	case outdoorCategories[c]:
		return 0.7
	case indoorCategories[c]:
		return 1.1
	}
	return 1.0
}

// AdjustForSeason scales score by the seasonal multiplier, clamped to 0-10.
func AdjustForSeason(score float64, category string, at time.Time) float64 {
	return round2(clamp(score * SeasonalMultiplier(category, at.Month())))
}

// AdjustForWeather scales score by the weather multiplier, clamped to 0-10.
func AdjustForWeather(score float64, category string, w Weather) float64 {
	return round2(clamp(score * WeatherMultiplier(category, w)))
}

func normalizeCategory(c string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_")
}

func clamp(v float64) float64 {
	return math.Max(constants.ScoreMin, math.Min(constants.ScoreMax, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
