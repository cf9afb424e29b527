package models

// Requests and listings for the macro HTTP endpoints.

type IndicatorRequest struct {
	Name string `param:"indicator" validate:"required,max=64"`
}

// IndicatorInfo describes one configured indicator.
type IndicatorInfo struct {
	Name        string   `json:"name"`
	Source      string   `json:"source"`
	Min         float64  `json:"min"`
	Max         float64  `json:"max"`
	Fallback    *float64 `json:"fallback"`
	TTLSeconds  int64    `json:"ttlSeconds"`
	RateLimited bool     `json:"rateLimited"`
}

// Describe builds the listing entry for spec.
func Describe(spec IndicatorSpec) IndicatorInfo {
	return IndicatorInfo{
		Name:        spec.Name,
		Source:      spec.Source,
		Min:         spec.ValidRange.Min,
		Max:         spec.ValidRange.Max,
		Fallback:    spec.Fallback,
		TTLSeconds:  int64(spec.TTL.Seconds()),
		RateLimited: spec.RateLimited,
	}
}
