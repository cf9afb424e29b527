package models

import (
	"context"
	"time"
)

// Observation is one numeric value read from an upstream source together with
// the period label the source attached to it ("2025-06-23", "2025K1", "2025M05").
type Observation struct {
	Value  float64 `json:"value"`
	Period string  `json:"period,omitempty"`
}

// Fetcher performs exactly one upstream call for an indicator.
type Fetcher interface {
	Fetch(ctx context.Context) (Observation, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context) (Observation, error)

func (f FetcherFunc) Fetch(ctx context.Context) (Observation, error) { return f(ctx) }

// Range is an inclusive plausibility interval.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// IndicatorSpec is the static definition of one economic indicator.
type IndicatorSpec struct {
	Name   string
	Source string // upstream source; rate-limited specs sharing a source run in one sequential chain
	Fetch  Fetcher

	ValidRange Range
	// Fallback is the last-known-good constant. Nil is a deployment defect.
	Fallback *float64
	// TTL of the cached live value. Zero disables caching for this indicator.
	TTL         time.Duration
	RateLimited bool
}

// Provenance tags how a snapshot value was obtained.
type Provenance string

const (
	ProvenanceLive     Provenance = "live"
	ProvenanceFallback Provenance = "fallback"
	// ProvenanceStale marks a previously fetched live value served because the upstream failed.
	ProvenanceStale Provenance = "stale"
)
