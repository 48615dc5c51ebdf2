package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Event is a domain notification published after a successful commit.
// Keep payloads small and JSON-friendly; subscribers dedupe on the
// message UUID.
type Event interface {
	Type() string
	// AggregateID is the POI id, or the discovery run id for run events.
	AggregateID() int64
	Timestamp() time.Time
	MarshalData() ([]byte, error)
}

// Publisher delivers events, fire-and-forget. Callers log failures and
// carry on; a failed publish never undoes committed work.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Base contains common event metadata.
type Base struct {
	Ts time.Time `json:"ts"`
	ID int64     `json:"id"`
}

func (b Base) Timestamp() time.Time { return b.Ts }
func (b Base) AggregateID() int64   { return b.ID }

const (
	TypePOICreated         = "poi.created"
	TypeTierChanged        = "poi.tier.changed"
	TypeDiscoveryCompleted = "poi.discovery.completed"
	TypeDiscoveryFailed    = "poi.discovery.failed"
)

// POICreated is emitted once per POI inserted by a committed discovery run.
type POICreated struct {
	Base
	RunID      int64  `json:"run_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Category   string `json:"category"`
	City       string `json:"city,omitempty"`
	Tier       int    `json:"tier"`
}

func (e POICreated) Type() string                 { return TypePOICreated }
func (e POICreated) MarshalData() ([]byte, error) { return json.Marshal(e) }

// POITierChanged is emitted when a committed classification moved a POI
// to a different tier. OldTier is 0 for a POI classified for the first time.
type POITierChanged struct {
	Base
	OldTier  int       `json:"old_tier"`
	NewTier  int       `json:"new_tier"`
	POIScore float64   `json:"poi_score"`
	NextAt   time.Time `json:"next_update_at"`
}

func (e POITierChanged) Type() string                 { return TypeTierChanged }
func (e POITierChanged) MarshalData() ([]byte, error) { return json.Marshal(e) }

type DiscoveryCompleted struct {
	Base
	Destination string   `json:"destination"`
	Categories  []string `json:"categories"`
	Found       int      `json:"found"`
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	Errors      int      `json:"errors"`
}

func (e DiscoveryCompleted) Type() string                 { return TypeDiscoveryCompleted }
func (e DiscoveryCompleted) MarshalData() ([]byte, error) { return json.Marshal(e) }

type DiscoveryFailed struct {
	Base
	Destination string `json:"destination"`
	Reason      string `json:"reason"`
}

func (e DiscoveryFailed) Type() string                 { return TypeDiscoveryFailed }
func (e DiscoveryFailed) MarshalData() ([]byte, error) { return json.Marshal(e) }

// Decode rebuilds an event from its type name and payload.
func Decode(eventType string, payload []byte) (Event, error) {
	var (
		e   Event
		err error
	)
	switch eventType {
	case TypePOICreated:
		var ev POICreated
		err = json.Unmarshal(payload, &ev)
		e = ev
	case TypeTierChanged:
		var ev POITierChanged
		err = json.Unmarshal(payload, &ev)
		e = ev
	case TypeDiscoveryCompleted:
		var ev DiscoveryCompleted
		err = json.Unmarshal(payload, &ev)
		e = ev
	case TypeDiscoveryFailed:
		var ev DiscoveryFailed
		err = json.Unmarshal(payload, &ev)
		e = ev
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return e, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
