package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// IndicatorValue is the resolved value of one indicator in a snapshot.
// Value is nil only when the indicator has neither a live value nor a fallback.
type IndicatorValue struct {
	Value  *float64   `json:"value"`
	Source Provenance `json:"source"`
	Period string     `json:"period,omitempty"`
}

// MacroSnapshot is one immutable, complete set of resolved indicator values.
type MacroSnapshot struct {
	ID          uuid.UUID                 `json:"id"`
	GeneratedAt time.Time                 `json:"generatedAt"`
	Values      map[string]IndicatorValue `json:"values"`
}

// Counts returns how many entries carry each provenance.
func (s MacroSnapshot) Counts() map[Provenance]int {
	out := make(map[Provenance]int, 3)
	for _, v := range s.Values {
		out[v.Source]++
	}
	return out
}

// Float returns a pointer to v, for building IndicatorSpec.Fallback and IndicatorValue.Value.
func Float(v float64) *float64 {
	return &v
}

// ObservationRecord is one flattened snapshot entry as persisted in history.
type ObservationRecord struct {
	SnapshotID  uuid.UUID  `json:"snapshotId"`
	GeneratedAt time.Time  `json:"generatedAt"`
	Indicator   string     `json:"indicator"`
	Value       *float64   `json:"value"`
	Source      Provenance `json:"source"`
	Period      string     `json:"period,omitempty"`
}

// Records flattens the snapshot, ordered by indicator name.
func (s MacroSnapshot) Records() []ObservationRecord {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ObservationRecord, 0, len(names))
	for _, name := range names {
		v := s.Values[name]
		out = append(out, ObservationRecord{
			SnapshotID:  s.ID,
			GeneratedAt: s.GeneratedAt,
			Indicator:   name,
			Value:       v.Value,
			Source:      v.Source,
			Period:      v.Period,
		})
	}
	return out
}
