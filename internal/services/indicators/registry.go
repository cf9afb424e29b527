package indicators

import (
	"errors"
	"fmt"
	"time"

	"MacroPull/internal/domain/models"
	"MacroPull/internal/services/sources"
	"MacroPull/pkg/config"
)

// Indicator names.
const (
	GDPQoQ       = "gdp_qoq"
	InflationYoY = "inflation_yoy"
	Unemployment = "unemployment"
	ECBRate      = "ecb_rate"
	RepoRate     = "repo_rate"
	SEKEUR       = "sek_eur"
	USDSEK       = "usd_sek"
	USDEUR       = "usd_eur"
)

// Sources bundles the upstream adapters the built-in indicators read from.
type Sources struct {
	SCB      *sources.SCB
	Riksbank *sources.Riksbank
	ECB      *sources.ECB
}

// Builtin returns the built-in indicator table in scheduling order. Fallbacks
// are last-known-good values as of mid 2025; deployments refresh them through
// the indicators section of the config file.
func Builtin(src Sources) []models.IndicatorSpec {
	return []models.IndicatorSpec{
		{
			Name:   GDPQoQ,
			Source: sources.SourceSCB,
			Fetch: src.SCB.Table("START/NR/NR0103/NR0103B/NR0103ENS2010T03Kv",
				sources.Item("ContentsCode", "NR0103G9"), sources.LatestPeriod()),
			ValidRange: models.Range{Min: -10, Max: 10},
			Fallback:   models.Float(-0.20),
			TTL:        6 * time.Hour,
		},
		{
			Name:   InflationYoY,
			Source: sources.SourceSCB,
			Fetch: src.SCB.Table("START/PR/PR0101/PR0101A/KPIFastM2",
				sources.Item("ContentsCode", "0000073T"), sources.LatestPeriod()),
			ValidRange: models.Range{Min: -5, Max: 20},
			Fallback:   models.Float(2.30),
			TTL:        6 * time.Hour,
		},
		{
			Name:   Unemployment,
			Source: sources.SourceSCB,
			Fetch: src.SCB.Table("START/AM/AM0401/AM0401A/ArbStatusM",
				sources.Item("Arbetskraftstatus", "3"),
				sources.Item("ContentsCode", "AM0401B9"),
				sources.LatestPeriod()),
			ValidRange: models.Range{Min: 0, Max: 30},
			Fallback:   models.Float(8.70),
			TTL:        6 * time.Hour,
		},
		{
			Name:       ECBRate,
			Source:     sources.SourceECB,
			Fetch:      src.ECB.Series("FM", "D.U2.EUR.4F.KR.DFR.LEV"),
			ValidRange: models.Range{Min: -1, Max: 10},
			Fallback:   models.Float(2.00),
			TTL:        6 * time.Hour,
		},
		{
			Name:        RepoRate,
			Source:      sources.SourceRiksbank,
			Fetch:       src.Riksbank.Series("SECBREPOEFF", false),
			ValidRange:  models.Range{Min: 0, Max: 10},
			Fallback:    models.Float(2.00),
			TTL:         time.Hour,
			RateLimited: true,
		},
		{
			Name:        SEKEUR,
			Source:      sources.SourceRiksbank,
			Fetch:       src.Riksbank.Series("SEKEURPMI", false),
			ValidRange:  models.Range{Min: 8, Max: 15},
			Fallback:    models.Float(10.946),
			TTL:         30 * time.Minute,
			RateLimited: true,
		},
		{
			// SEK per USD, as quoted on the dashboard.
			Name:        USDSEK,
			Source:      sources.SourceRiksbank,
			Fetch:       src.Riksbank.Series("SEKUSDPMI", false),
			ValidRange:  models.Range{Min: 8, Max: 12},
			Fallback:    models.Float(9.60),
			TTL:         30 * time.Minute,
			RateLimited: true,
		},
		{
			// EUR per USD; the series is USD per EUR.
			Name:        USDEUR,
			Source:      sources.SourceRiksbank,
			Fetch:       src.Riksbank.Series("EURUSDPMI", true),
			ValidRange:  models.Range{Min: 0.7, Max: 1.2},
			Fallback:    models.Float(0.88),
			TTL:         30 * time.Minute,
			RateLimited: true,
		},
	}
}

// Registry is the fixed indicator set of a running process.
type Registry struct {
	specs []models.IndicatorSpec
	index map[string]int
}

// NewRegistry applies overrides to specs and validates the result.
func NewRegistry(specs []models.IndicatorSpec, overrides map[string]config.IndicatorOverride) (*Registry, error) {
	known := make(map[string]bool, len(specs))
	for _, s := range specs {
		known[s.Name] = true
	}
	for name := range overrides {
		if !known[name] {
			return nil, fmt.Errorf("indicators.%s: unknown indicator", name)
		}
	}

	out := make([]models.IndicatorSpec, 0, len(specs))
	for _, s := range specs {
		o, ok := overrides[s.Name]
		if ok {
			if o.Disabled {
				continue
			}
			s = apply(s, o)
		}
		out = append(out, s)
	}

	if err := Validate(out); err != nil {
		return nil, err
	}

	r := &Registry{specs: out, index: make(map[string]int, len(out))}
	for i, s := range out {
		r.index[s.Name] = i
	}
	return r, nil
}

func apply(s models.IndicatorSpec, o config.IndicatorOverride) models.IndicatorSpec {
	if o.Fallback != nil {
		s.Fallback = models.Float(*o.Fallback)
	}
	if o.Min != nil {
		s.ValidRange.Min = *o.Min
	}
	if o.Max != nil {
		s.ValidRange.Max = *o.Max
	}
	if o.TTL != nil {
		s.TTL = *o.TTL
	}
	return s
}

// Validate rejects indicator sets no aggregation pass can be built from.
// A missing fallback is not rejected here; see MissingFallbacks.
func Validate(specs []models.IndicatorSpec) error {
	seen := make(map[string]bool, len(specs))
	var errs []error
	for _, s := range specs {
		switch {
		case s.Name == "":
			errs = append(errs, errors.New("indicator with empty name"))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("%s: duplicate indicator", s.Name))
		case s.Fetch == nil:
			errs = append(errs, fmt.Errorf("%s: no fetcher", s.Name))
		case s.ValidRange.Min > s.ValidRange.Max:
			errs = append(errs, fmt.Errorf("%s: empty valid range", s.Name))
		case s.TTL < 0:
			errs = append(errs, fmt.Errorf("%s: negative ttl", s.Name))
		}
		seen[s.Name] = true
	}
	return errors.Join(errs...)
}

// ValidateNames rejects sets whose entries cannot be keyed by name. It is the
// only check that makes a whole aggregation pass unusable.
func ValidateNames(specs []models.IndicatorSpec) error {
	seen := make(map[string]bool, len(specs))
	var errs []error
	for _, s := range specs {
		switch {
		case s.Name == "":
			errs = append(errs, errors.New("indicator with empty name"))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("%s: duplicate indicator", s.Name))
		}
		seen[s.Name] = true
	}
	return errors.Join(errs...)
}

// MissingFallbacks lists indicators that would render as null when their upstream fails.
func MissingFallbacks(specs []models.IndicatorSpec) []string {
	var out []string
	for _, s := range specs {
		if s.Fallback == nil {
			out = append(out, s.Name)
		}
	}
	return out
}

// Specs returns a copy of the configured indicators in scheduling order.
func (r *Registry) Specs() []models.IndicatorSpec {
	out := make([]models.IndicatorSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Get returns the indicator named name.
func (r *Registry) Get(name string) (models.IndicatorSpec, bool) {
	i, ok := r.index[name]
	if !ok {
		return models.IndicatorSpec{}, false
	}
	return r.specs[i], true
}
