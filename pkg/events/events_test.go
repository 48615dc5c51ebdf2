package events

import (
	"context"
	"testing"
	"time"
)

func TestGoChannelPublishDelivers(t *testing.T) {
	pub, gc := NewGoChannel(nil)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msgs, err := gc.Subscribe(ctx, TypeTierChanged)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	want := POITierChanged{Base: Base{ID: 42, Ts: time.Now().UTC()}, OldTier: 3, NewTier: 2, POIScore: 7.25}
	if err := pub.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		if msg.UUID == "" {
			t.Error("message UUID is empty")
		}
		ev, err := DecodeMessage(msg)
		if err != nil {
			t.Fatalf("DecodeMessage: %v", err)
		}
		got, ok := ev.(POITierChanged)
		if !ok {
			t.Fatalf("decoded %T, want POITierChanged", ev)
		}
		if got.AggregateID() != 42 || got.OldTier != 3 || got.NewTier != 2 || got.POIScore != 7.25 {
			t.Errorf("decoded = %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestPublishAfterClose(t *testing.T) {
	pub, _ := NewGoChannel(nil)
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := pub.Publish(context.Background(), POICreated{Name: "x"}); err == nil {
		t.Fatal("expected error publishing on closed publisher")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{name: "created", event: POICreated{Base: Base{ID: 1}, Name: "Peñón de Ifach", Slug: "penon-de-ifach", Tier: 1}},
		{name: "completed", event: DiscoveryCompleted{Base: Base{ID: 7}, Destination: "calpe", Found: 10, Created: 4}},
		{name: "failed", event: DiscoveryFailed{Base: Base{ID: 8}, Destination: "calpe", Reason: "transaction failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.event.MarshalData()
			if err != nil {
				t.Fatal(err)
			}
			got, err := Decode(tt.event.Type(), data)
			if err != nil {
				t.Fatal(err)
			}
			if got.Type() != tt.event.Type() || got.AggregateID() != tt.event.AggregateID() {
				t.Errorf("Decode = %+v, want %+v", got, tt.event)
			}
		})
	}

	if _, err := Decode("poi.unknown", []byte("{}")); err == nil {
		t.Error("expected error for unknown type")
	}
}
