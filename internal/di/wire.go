//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MacroPull/pkg/config"
	"MacroPull/pkg/server"
)

var coreSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,

	// Cache
	ProvideCacheStore,
	ProvideReadThrough,

	// Upstreams and indicator set
	ProvideHTTPClient,
	ProvideSources,
	ProvideIndicatorRegistry,

	// Aggregation
	ProvideBreakers,
	ProvideValidatedFetcher,
	ProvideScheduler,
	ProvideAggregator,

	// Sinks
	ProvideHub,
	ProvideSnapshotStore,
	ProvideKafkaPublisher,
	ProvideSinks,

	ProvideMacroService,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		coreSet,
		ProvideRateLimiter,
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeTooling wires the dependencies used by the command line client.
func InitializeTooling(cfg *config.Config) (*Tooling, error) {
	wire.Build(
		coreSet,
		wire.Struct(new(Tooling), "*"),
	)
	return &Tooling{}, nil
}
