package usecase

import (
	"math"

	"MacroPull/internal/domain/models"
)

// Outcome is what the cache and fetch steps produced for one indicator.
type Outcome struct {
	Obs   models.Observation
	Err   error
	Stale bool
}

// Resolve turns an outcome into the snapshot entry for spec: a present,
// plausible value is kept; anything else becomes the configured fallback.
// Pure; never retries.
func Resolve(spec models.IndicatorSpec, o Outcome) models.IndicatorValue {
	if o.Err == nil && !math.IsNaN(o.Obs.Value) && spec.ValidRange.Contains(o.Obs.Value) {
		src := models.ProvenanceLive
		if o.Stale {
			src = models.ProvenanceStale
		}
		return models.IndicatorValue{
			Value:  models.Float(o.Obs.Value),
			Source: src,
			Period: o.Obs.Period,
		}
	}
	return fallbackValue(spec)
}

func fallbackValue(spec models.IndicatorSpec) models.IndicatorValue {
	v := models.IndicatorValue{Source: models.ProvenanceFallback}
	if spec.Fallback != nil {
		v.Value = models.Float(*spec.Fallback)
	}
	return v
}

// FallbackValues resolves every indicator to its fallback.
func FallbackValues(specs []models.IndicatorSpec) map[string]models.IndicatorValue {
	out := make(map[string]models.IndicatorValue, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			continue
		}
		out[s.Name] = fallbackValue(s)
	}
	return out
}
