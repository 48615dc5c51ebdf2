package sources

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"googlemaps.github.io/maps"

	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
)

// placesClient is the part of *maps.Client the adapter uses.
type placesClient interface {
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
}

// GooglePlaces searches the Google Places text search API.
type GooglePlaces struct {
	client placesClient
	cost   float64
}

func NewGooglePlaces(apiKey string, costPerCall float64) (*GooglePlaces, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, errs.NewExternal("sources.NewGooglePlaces", "google_maps", "create client", err)
	}
	return &GooglePlaces{client: client, cost: costPerCall}, nil
}

func newGooglePlacesWithClient(c placesClient, costPerCall float64) *GooglePlaces {
	return &GooglePlaces{client: c, cost: costPerCall}
}

func (g *GooglePlaces) Name() string         { return GooglePlacesName }
func (g *GooglePlaces) CostPerCall() float64 { return g.cost }

func (g *GooglePlaces) FetchCandidates(ctx context.Context, q Query) ([]models.Candidate, error) {
	req := &maps.TextSearchRequest{Query: textQuery(q)}
	if q.HasLocation() {
		req.Location = &maps.LatLng{Lat: *q.Lat, Lng: *q.Lng}
		if q.RadiusMeters > 0 {
			req.Radius = uint(q.RadiusMeters)
		}
	}

	resp, err := g.client.TextSearch(ctx, req)
	if err != nil {
		return nil, errs.NewExternal("sources.GooglePlaces.FetchCandidates", "google_maps", "text search", err)
	}

	results := resp.Results
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	out := make([]models.Candidate, 0, len(results))
	for i, r := range results {
		out = append(out, placeToCandidate(r, q.Category, i+1))
	}
	return out, nil
}

func textQuery(q Query) string {
	var parts []string
	switch {
	case q.Name != "":
		parts = append(parts, q.Name)
	case q.Category != "":
		parts = append(parts, strings.ReplaceAll(q.Category, "_", " "))
	}
	if q.Destination != "" {
		parts = append(parts, "in", q.Destination)
	}
	return strings.Join(parts, " ")
}

func placeToCandidate(r maps.PlacesSearchResult, category string, position int) models.Candidate {
	c := models.Candidate{
		Source:     GooglePlacesName,
		ExternalID: r.PlaceID,
		Name:       r.Name,
		Category:   category,
		Address:    r.FormattedAddress,
		Ranking:    &position,
	}
	if c.Category == "" {
		c.Category = categoryFromTypes(r.Types)
	}

	lat, lng := r.Geometry.Location.Lat, r.Geometry.Location.Lng
	if lat != 0 || lng != 0 {
		c.Lat, c.Lng = &lat, &lng
	}
	if r.Rating > 0 {
		rating := float64(r.Rating)
		c.Rating = &rating
	}
	if r.UserRatingsTotal > 0 {
		n := int64(r.UserRatingsTotal)
		c.ReviewCount = &n
	}
	if r.PriceLevel > 0 {
		pl := r.PriceLevel
		c.PriceLevel = &pl
	}
	if raw, err := json.Marshal(r); err == nil {
		c.Raw = raw
	}
	return c
}

// googleTypeCategories maps Google place types to POI categories, most
// specific first.
var googleTypeCategories = []struct {
	placeType string
	category  string
}{
	{"museum", "museum"},
	{"art_gallery", "museum"},
	{"church", "church"},
	{"place_of_worship", "church"},
	{"amusement_park", "theme_park"},
	{"tourist_attraction", "attraction"},
	{"natural_feature", "nature"},
	{"park", "park"},
	{"restaurant", "restaurant"},
	{"bar", "bar"},
	{"cafe", "cafe"},
	{"shopping_mall", "shopping"},
	{"store", "shopping"},
	{"lodging", "accommodation"},
	{"stadium", "sports"},
	{"gym", "sports"},
	{"hospital", "healthcare"},
	{"pharmacy", "healthcare"},
}

func categoryFromTypes(types []string) string {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	for _, m := range googleTypeCategories {
		if _, ok := set[m.placeType]; ok {
			return m.category
		}
	}
	return "unknown"
}
