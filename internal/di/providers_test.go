package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrepo "MacroPull/internal/repository"
	"MacroPull/internal/services/stream"
	pkgcache "MacroPull/pkg/cache"
	"MacroPull/pkg/config"
	applogger "MacroPull/pkg/logger"
)

func TestProvideCacheStore(t *testing.T) {
	l := applogger.Nop()

	tests := []struct {
		backend string
		check   func(t *testing.T, s pkgcache.Store)
	}{
		{"none", func(t *testing.T, s pkgcache.Store) { assert.Nil(t, s) }},
		{"memory", func(t *testing.T, s pkgcache.Store) { assert.IsType(t, &pkgcache.MemoryCache{}, s) }},
		{"redis", func(t *testing.T, s pkgcache.Store) { assert.Nil(t, s, "redis without host disables caching") }},
		{"layered", func(t *testing.T, s pkgcache.Store) { assert.IsType(t, &pkgcache.MemoryCache{}, s) }},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Cache.Backend = tt.backend

			s := ProvideCacheStore(cfg, l)
			tt.check(t, s)
			if s != nil {
				_ = s.Close()
			}
		})
	}
}

func TestProvideSinks_SkipsDisabled(t *testing.T) {
	hub := stream.NewHub(nil)

	sinks := ProvideSinks(hub, nil, nil)
	require.Len(t, sinks, 1)
	assert.Equal(t, "websocket", sinks[0].Name())

	sinks = ProvideSinks(hub, nil, internalrepo.NewKafkaSnapshotPublisher(nil))
	assert.Len(t, sinks, 2)
}

func TestProvideOptionalComponentsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Breaker.Enabled = false
	cfg.RateLimit.Enabled = false

	assert.Nil(t, ProvideBreakers(cfg, applogger.Nop(), nil))
	assert.Nil(t, ProvideRateLimiter(cfg))
	assert.Nil(t, ProvideSnapshotStore(cfg, applogger.Nop()))
	assert.Nil(t, ProvideKafkaPublisher(cfg, ProvideRegistry(), applogger.Nop()))
}

func TestProvideIndicatorRegistry_RejectsUnknownOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Indicators = map[string]config.IndicatorOverride{"gold_price": {}}

	_, err := ProvideIndicatorRegistry(cfg, ProvideSources(cfg, ProvideHTTPClient(cfg)), applogger.Nop())
	require.Error(t, err)
}

func TestInitializeApp_DefaultsNeedNoInfrastructure(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)

	tools, err := InitializeTooling(cfg)
	require.NoError(t, err)
	assert.Len(t, tools.Registry.Specs(), 8)
	require.NoError(t, tools.Close())
}
