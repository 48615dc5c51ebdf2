package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	errs "poi-tiering/pkg/errors"
)

// Profile is the optional YAML scoring profile. Every field is an override;
// anything left out keeps the compiled-in default of the package that owns it.
//
//	sources:
//	  google_places: {weight: 1.0, scale: 5}
//	  booking: {weight: 0.7, scale: 10}
//	categories:
//	  beach: 8.5
//	ranking_steps:
//	  - {max_position: 10, score: 10}
//	location_boost: 5.0
//	criteria:
//	  min_reviews: 10
type Profile struct {
	Sources      map[string]SourceProfile      `yaml:"sources" validate:"dive"`
	Categories   map[string]float64            `yaml:"categories" validate:"dive,gte=0,lte=10"`
	RankingSteps []RankingStep                 `yaml:"ranking_steps" validate:"dive"`
	Location     *LocationProfile              `yaml:"location"`
	Verification *VerificationProfile          `yaml:"verification"`
	Criteria     *CriteriaProfile              `yaml:"criteria"`
	Destinations map[string]DestinationProfile `yaml:"destinations" validate:"dive"`

	// LocationBoost is shorthand for location.constant.
	LocationBoost *float64 `yaml:"location_boost" validate:"omitempty,gte=0,lte=10"`
}

type SourceProfile struct {
	Weight float64 `yaml:"weight" validate:"gte=0,lte=1"`
	Scale  float64 `yaml:"scale" validate:"eq=5|eq=10"`
}

type RankingStep struct {
	MaxPosition int     `yaml:"max_position" validate:"gte=1"`
	Score       float64 `yaml:"score" validate:"gte=0,lte=10"`
}

type LocationProfile struct {
	Constant      *float64 `yaml:"constant" validate:"omitempty,gte=0,lte=10"`
	DistanceBased *bool    `yaml:"distance_based"`
}

type VerificationProfile struct {
	Verified   *float64 `yaml:"verified" validate:"omitempty,gte=0,lte=10"`
	Unverified *float64 `yaml:"unverified" validate:"omitempty,gte=0,lte=10"`
}

type CriteriaProfile struct {
	MinReviews  *int64   `yaml:"min_reviews" validate:"omitempty,gte=0"`
	MinRating   *float64 `yaml:"min_rating" validate:"omitempty,gte=0,lte=5"`
	MaxRating   *float64 `yaml:"max_rating" validate:"omitempty,gte=0,lte=5"`
	PriceLevels []int    `yaml:"price_levels" validate:"omitempty,dive,gte=0,lte=4"`
}

type DestinationProfile struct {
	Country      string  `yaml:"country"`
	Lat          float64 `yaml:"lat" validate:"latitude"`
	Lng          float64 `yaml:"lng" validate:"longitude"`
	RadiusMeters float64 `yaml:"radius_m" validate:"gt=0"`
}

// LocationConstant returns the configured constant location boost, if any.
func (p *Profile) LocationConstant() *float64 {
	if p.Location != nil && p.Location.Constant != nil {
		return p.Location.Constant
	}
	return p.LocationBoost
}

// ParseProfile decodes and validates a YAML scoring profile. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, errs.NewValidation("config.ParseProfile", "decode yaml", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProfile reads the profile at path. An empty path yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errs.NewValidation("config.LoadProfile", "read "+path, err)
	}
	return ParseProfile(data)
}

func (p *Profile) Validate() error {
	if err := GetValidator().Struct(p); err != nil {
		return errs.NewValidation("config.Profile.Validate", "invalid scoring profile", err)
	}
	if c := p.Criteria; c != nil && c.MinRating != nil && c.MaxRating != nil && *c.MinRating > *c.MaxRating {
		return errs.NewValidation("config.Profile.Validate",
			fmt.Sprintf("criteria.min_rating %.2f exceeds max_rating %.2f", *c.MinRating, *c.MaxRating), nil)
	}
	for i := 1; i < len(p.RankingSteps); i++ {
		if p.RankingSteps[i].MaxPosition <= p.RankingSteps[i-1].MaxPosition {
			return errs.NewValidation("config.Profile.Validate", "ranking_steps must be ordered by max_position", nil)
		}
	}
	return nil
}
