package testutil

import (
	"context"
	"sync"
	"time"

	"poi-tiering/internal/models"
	"poi-tiering/internal/sources"
	"poi-tiering/pkg/events"
)

// MockSource implements sources.Adapter for tests. Responses are keyed by
// query name first, then category; Default is returned otherwise.
type MockSource struct {
	Mu      sync.Mutex
	SrcName string
	Cost    float64
	Resp    map[string][]models.Candidate
	Err     map[string]error
	Default []models.Candidate
	Calls   []sources.Query
}

func NewMockSource(name string) *MockSource {
	return &MockSource{SrcName: name, Resp: map[string][]models.Candidate{}, Err: map[string]error{}}
}

func (m *MockSource) Name() string         { return m.SrcName }
func (m *MockSource) CostPerCall() float64 { return m.Cost }

func (m *MockSource) FetchCandidates(_ context.Context, q sources.Query) ([]models.Candidate, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls = append(m.Calls, q)
	for _, key := range []string{q.Name, q.Category} {
		if key == "" {
			continue
		}
		if err, ok := m.Err[key]; ok {
			return nil, err
		}
		if r, ok := m.Resp[key]; ok {
			return withSource(m.SrcName, r), nil
		}
	}
	return withSource(m.SrcName, m.Default), nil
}

func (m *MockSource) CallCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Calls)
}

func withSource(name string, in []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(in))
	for i, c := range in {
		if c.Source == "" {
			c.Source = name
		}
		out[i] = c
	}
	return out
}

// RecordingPublisher implements events.Publisher and keeps every event.
type RecordingPublisher struct {
	Mu     sync.Mutex
	Events []events.Event
	Err    error
	Closed bool
}

func (p *RecordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, e)
	return nil
}

func (p *RecordingPublisher) Close() error {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	p.Closed = true
	return nil
}

// Types returns the recorded event types in publish order.
func (p *RecordingPublisher) Types() []string {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	out := make([]string, len(p.Events))
	for i, e := range p.Events {
		out[i] = e.Type()
	}
	return out
}

// OfType returns the recorded events with the given type.
func (p *RecordingPublisher) OfType(t string) []events.Event {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	var out []events.Event
	for _, e := range p.Events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// StaticBookingCounter implements domain.BookingCounter from a fixed map.
type StaticBookingCounter struct {
	Mu     sync.Mutex
	Counts map[int64]int64
	Err    error
}

func (c *StaticBookingCounter) CountBookings(_ context.Context, poiID int64, _ time.Time) (int64, error) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.Counts[poiID], nil
}
