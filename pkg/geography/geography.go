// Package geography holds the small amount of spherical geometry the
// ingestion pipeline needs.
package geography

import (
	"math"
	"strings"
)

const earthRadiusMeters = 6371000.0

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// DistanceMeters returns the great-circle (Haversine) distance between
// two points. Identical points are exactly 0 apart.
func DistanceMeters(a, b Point) float64 {
	if a == b {
		return 0
	}
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Distance is DistanceMeters on raw coordinates.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	return DistanceMeters(Point{lat1, lng1}, Point{lat2, lng2})
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// Destination is a named area discovery runs are scoped to.
type Destination struct {
	Name         string  `json:"name" yaml:"name"`
	Country      string  `json:"country" yaml:"country"`
	Center       Point   `json:"center" yaml:"center"`
	RadiusMeters float64 `json:"radius_meters" yaml:"radius_meters"`
}

// Contains reports whether p lies within the destination radius.
func (d Destination) Contains(p Point) bool {
	return d.RadiusMeters > 0 && DistanceMeters(d.Center, p) <= d.RadiusMeters
}

// DefaultDestinations are the destinations known without a scoring profile.
var DefaultDestinations = map[string]Destination{
	"calpe": {Name: "Calpe", Country: "Spain", Center: Point{38.6447, 0.0445}, RadiusMeters: 8000},
	"texel": {Name: "Texel", Country: "Netherlands", Center: Point{53.0550, 4.7977}, RadiusMeters: 20000},
}

// LookupDestination finds a destination by case-insensitive name.
func LookupDestination(known map[string]Destination, name string) (Destination, bool) {
	d, ok := known[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}
