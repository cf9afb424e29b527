package indicators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPull/internal/domain/models"
	"MacroPull/internal/services/sources"
	"MacroPull/pkg/config"
	xhttp "MacroPull/pkg/http"
)

func builtin() []models.IndicatorSpec {
	c := xhttp.NewClient()
	return Builtin(Sources{
		SCB:      sources.NewSCB("http://scb.invalid", c),
		Riksbank: sources.NewRiksbank("http://riksbank.invalid", c),
		ECB:      sources.NewECB("http://ecb.invalid", c),
	})
}

func TestBuiltin(t *testing.T) {
	specs := builtin()
	require.NoError(t, Validate(specs))
	assert.Empty(t, MissingFallbacks(specs))

	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
		require.NotNil(t, s.Fallback, s.Name)
		assert.True(t, s.ValidRange.Contains(*s.Fallback), "%s fallback must be plausible", s.Name)
		assert.Positive(t, s.TTL, s.Name)
		assert.Equal(t, s.Source == sources.SourceRiksbank, s.RateLimited, s.Name)
	}
	assert.Equal(t, []string{GDPQoQ, InflationYoY, Unemployment, ECBRate, RepoRate, SEKEUR, USDSEK, USDEUR}, names)
}

func TestNewRegistry_Overrides(t *testing.T) {
	fallback, maxV, ttl := 2.25, 9.0, 2*time.Hour
	r, err := NewRegistry(builtin(), map[string]config.IndicatorOverride{
		RepoRate: {Fallback: &fallback, Max: &maxV, TTL: &ttl},
		USDEUR:   {Disabled: true},
	})
	require.NoError(t, err)

	repo, ok := r.Get(RepoRate)
	require.True(t, ok)
	assert.Equal(t, 2.25, *repo.Fallback)
	assert.Equal(t, models.Range{Min: 0, Max: 9}, repo.ValidRange)
	assert.Equal(t, 2*time.Hour, repo.TTL)

	_, ok = r.Get(USDEUR)
	assert.False(t, ok)
	assert.Len(t, r.Specs(), 7)
}

func TestNewRegistry_OverrideDoesNotAliasFallback(t *testing.T) {
	fallback := 2.25
	r, err := NewRegistry(builtin(), map[string]config.IndicatorOverride{RepoRate: {Fallback: &fallback}})
	require.NoError(t, err)

	fallback = 99
	repo, _ := r.Get(RepoRate)
	assert.Equal(t, 2.25, *repo.Fallback)
}

func TestNewRegistry_UnknownOverride(t *testing.T) {
	_, err := NewRegistry(builtin(), map[string]config.IndicatorOverride{"oil_price": {}})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	f := models.FetcherFunc(func(context.Context) (models.Observation, error) { return models.Observation{}, nil })

	err := Validate([]models.IndicatorSpec{
		{Name: "a", Fetch: f, ValidRange: models.Range{Min: 0, Max: 1}},
		{Name: "a", Fetch: f},
		{Name: "b"},
		{Name: "c", Fetch: f, ValidRange: models.Range{Min: 2, Max: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: duplicate indicator")
	assert.Contains(t, err.Error(), "b: no fetcher")
	assert.Contains(t, err.Error(), "c: empty valid range")

	names := ValidateNames([]models.IndicatorSpec{{Name: "a"}, {Name: "a"}, {Name: "b"}, {}})
	require.Error(t, names)
	assert.Contains(t, names.Error(), "a: duplicate indicator")
	assert.Contains(t, names.Error(), "empty name")
	assert.NotContains(t, names.Error(), "no fetcher")
	assert.NoError(t, ValidateNames([]models.IndicatorSpec{{Name: "a"}, {Name: "b"}}))

	assert.Equal(t, []string{"a"}, MissingFallbacks([]models.IndicatorSpec{{Name: "a", Fetch: f}}))
}

func TestRegistry_SpecsIsACopy(t *testing.T) {
	r, err := NewRegistry(builtin(), nil)
	require.NoError(t, err)

	specs := r.Specs()
	specs[0].Name = "mutated"
	assert.Equal(t, GDPQoQ, r.Specs()[0].Name)
}
