// Injector bodies for wire.go, kept in the layout wire emits. Running
// `wire ./internal/di` replaces this file with the generated equivalent.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package di

import (
	"MacroPull/pkg/config"
	"MacroPull/pkg/server"
)

// Injectors from wire.go:

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	registry := ProvideRegistry()
	metrics := ProvideMetrics(registry)
	store := ProvideCacheStore(cfg, logger)
	readThrough := ProvideReadThrough(store, cfg, logger, metrics)
	client := ProvideHTTPClient(cfg)
	sources := ProvideSources(cfg, client)
	indicatorsRegistry, err := ProvideIndicatorRegistry(cfg, sources, logger)
	if err != nil {
		return nil, err
	}
	set := ProvideBreakers(cfg, logger, metrics)
	validatedFetcher := ProvideValidatedFetcher(cfg, logger, set, metrics)
	scheduler := ProvideScheduler(cfg, logger)
	macroAggregator := ProvideAggregator(validatedFetcher, readThrough, scheduler, logger, metrics)
	hub := ProvideHub(logger)
	chSnapshotStore := ProvideSnapshotStore(cfg, logger)
	kafkaSnapshotPublisher := ProvideKafkaPublisher(cfg, registry, logger)
	sinks := ProvideSinks(hub, chSnapshotStore, kafkaSnapshotPublisher)
	macroService := ProvideMacroService(cfg, macroAggregator, indicatorsRegistry, sinks, logger, metrics)
	limiter := ProvideRateLimiter(cfg)
	macroEchoHandler := ProvideHandler(cfg, logger, macroService, indicatorsRegistry, hub, store, chSnapshotStore)
	httpServer := ProvideHTTPServer(cfg, macroEchoHandler, registry, logger, limiter)
	app := ProvideApp(cfg, logger, httpServer, macroService, limiter, hub, store, chSnapshotStore, kafkaSnapshotPublisher)
	return app, nil
}

// InitializeTooling wires the dependencies used by the command line client.
func InitializeTooling(cfg *config.Config) (*Tooling, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	registry := ProvideRegistry()
	metrics := ProvideMetrics(registry)
	store := ProvideCacheStore(cfg, logger)
	readThrough := ProvideReadThrough(store, cfg, logger, metrics)
	client := ProvideHTTPClient(cfg)
	sources := ProvideSources(cfg, client)
	indicatorsRegistry, err := ProvideIndicatorRegistry(cfg, sources, logger)
	if err != nil {
		return nil, err
	}
	set := ProvideBreakers(cfg, logger, metrics)
	validatedFetcher := ProvideValidatedFetcher(cfg, logger, set, metrics)
	scheduler := ProvideScheduler(cfg, logger)
	macroAggregator := ProvideAggregator(validatedFetcher, readThrough, scheduler, logger, metrics)
	hub := ProvideHub(logger)
	chSnapshotStore := ProvideSnapshotStore(cfg, logger)
	kafkaSnapshotPublisher := ProvideKafkaPublisher(cfg, registry, logger)
	sinks := ProvideSinks(hub, chSnapshotStore, kafkaSnapshotPublisher)
	macroService := ProvideMacroService(cfg, macroAggregator, indicatorsRegistry, sinks, logger, metrics)
	tooling := &Tooling{
		Logger:   logger,
		Service:  macroService,
		Registry: indicatorsRegistry,
		History:  chSnapshotStore,
		Store:    store,
	}
	return tooling, nil
}
