package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"poi-tiering/internal/models"
)

// Well-known source names. The trust weights in the aggregator are keyed
// by these.
const (
	GooglePlacesName = "google_places"
	TripAdvisorName  = "tripadvisor"
	TheForkName      = "thefork"
	BookingName      = "booking"
	AirbnbName       = "airbnb"
)

// Query narrows a candidate search. Discovery sets Destination and
// Category; cross-validation sets Name and the coordinates of the POI.
type Query struct {
	Destination  string
	Category     string
	Name         string
	Lat          *float64
	Lng          *float64
	RadiusMeters float64
	Limit        int
}

// HasLocation reports whether the query is anchored to coordinates.
func (q Query) HasLocation() bool { return q.Lat != nil && q.Lng != nil }

// Adapter is the contract every external POI provider satisfies.
// Implementations return candidates in the provider's ranking order.
type Adapter interface {
	Name() string
	// CostPerCall is the USD charged by the provider per request; 0 for free sources.
	CostPerCall() float64
	FetchCandidates(ctx context.Context, q Query) ([]models.Candidate, error)
}

// Registry maps source names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter under its own name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select resolves names to adapters in the given order. An empty list
// selects every registered adapter.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		a, ok := r.Get(n)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", n)
		}
		out = append(out, a)
	}
	return out, nil
}
