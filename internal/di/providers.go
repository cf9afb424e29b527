package di

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"MacroPull/internal/domain/repository"
	"MacroPull/internal/handler/api"
	internalrepo "MacroPull/internal/repository"
	"MacroPull/internal/service/breaker"
	svccache "MacroPull/internal/service/cache"
	"MacroPull/internal/service/ratelimit"
	"MacroPull/internal/services/indicators"
	"MacroPull/internal/services/sources"
	"MacroPull/internal/services/stream"
	"MacroPull/internal/usecase"
	pkgcache "MacroPull/pkg/cache"
	pkgch "MacroPull/pkg/clickhouse"
	"MacroPull/pkg/config"
	xhttp "MacroPull/pkg/http"
	"MacroPull/pkg/http/middleware"
	pkgkafka "MacroPull/pkg/kafka"
	applogger "MacroPull/pkg/logger"
	"MacroPull/pkg/metrics"
	"MacroPull/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideRegistry creates the Prometheus registry scraped at /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegistry(reg)
}

// ProvideCacheStore picks the cache backend. Missing or unreachable Redis
// disables caching (or falls back to memory for the layered backend); it is
// never a startup error.
func ProvideCacheStore(cfg *config.Config, l *applogger.Logger) pkgcache.Store {
	backend := cfg.Cache.Backend
	memory := func() pkgcache.Store {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
	}

	switch backend {
	case "none":
		l.Info("indicator cache disabled")
		return nil
	case "memory":
		return memory()
	}

	if !cfg.RedisConfigured() {
		l.Warn("redis not configured", applogger.String("backend", backend))
		if backend == "layered" {
			return memory()
		}
		return nil
	}

	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Cache.Redis.Host),
		pkgcache.WithRedisPort(cfg.Cache.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		pkgcache.WithRedisPool(cfg.Cache.Redis.PoolSize, 1, 4*time.Second),
	)
	if err != nil {
		l.Warn("redis unavailable, indicator cache degraded",
			applogger.String("backend", backend),
			applogger.Error(err),
		)
		if backend == "layered" {
			return memory()
		}
		return nil
	}

	if backend == "layered" {
		return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
	}
	return rc
}

// ProvideReadThrough wraps the store in the get-or-compute layer.
func ProvideReadThrough(store pkgcache.Store, cfg *config.Config, l *applogger.Logger, m repository.Metrics) *svccache.ReadThrough {
	return svccache.NewReadThrough(store, l,
		svccache.WithStaleTTL(cfg.Cache.StaleTTL),
		svccache.WithRecorder(m),
	)
}

// ProvideHTTPClient creates the outbound client shared by every source.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.Upstream.Timeout),
		xhttp.WithHeader("User-Agent", cfg.Upstream.UserAgent),
		xhttp.WithHeader("Accept", "application/json, text/csv"),
	)
}

// ProvideSources creates the upstream source clients.
func ProvideSources(cfg *config.Config, client *xhttp.Client) indicators.Sources {
	return indicators.Sources{
		SCB:      sources.NewSCB(cfg.Upstream.SCBBaseURL, client),
		Riksbank: sources.NewRiksbank(cfg.Upstream.RiksbankURL, client),
		ECB:      sources.NewECB(cfg.Upstream.ECBBaseURL, client),
	}
}

// ProvideIndicatorRegistry builds the configured indicator set.
func ProvideIndicatorRegistry(cfg *config.Config, src indicators.Sources, l *applogger.Logger) (*indicators.Registry, error) {
	reg, err := indicators.NewRegistry(indicators.Builtin(src), cfg.Indicators)
	if err != nil {
		return nil, err
	}
	if missing := indicators.MissingFallbacks(reg.Specs()); len(missing) > 0 {
		l.Error("indicators without fallback will render as null when their upstream fails",
			applogger.Strings("indicators", missing))
	}
	return reg, nil
}

// ProvideBreakers creates per-source circuit breakers, or nil when disabled.
func ProvideBreakers(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *breaker.Set {
	if !cfg.Breaker.Enabled {
		return nil
	}
	return breaker.NewSet(breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
		Countable:        usecase.CountsAgainstSource,
	}, l, m)
}

func ProvideValidatedFetcher(cfg *config.Config, l *applogger.Logger, b *breaker.Set, m repository.Metrics) *usecase.ValidatedFetcher {
	opts := []usecase.FetcherOption{usecase.WithFetcherMetrics(m)}
	if b != nil {
		opts = append(opts, usecase.WithBreakers(b))
	}
	return usecase.NewValidatedFetcher(cfg.Upstream.Timeout, l, opts...)
}

func ProvideScheduler(cfg *config.Config, l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(usecase.RealClock(), cfg.Upstream.RateLimitDelay, l)
}

func ProvideAggregator(f *usecase.ValidatedFetcher, rt *svccache.ReadThrough, s *usecase.Scheduler, l *applogger.Logger, m repository.Metrics) *usecase.MacroAggregator {
	return usecase.NewMacroAggregator(f, rt, s, l, usecase.WithAggregatorMetrics(m))
}

// ProvideHub creates the websocket snapshot hub.
func ProvideHub(l *applogger.Logger) *stream.Hub {
	return stream.NewHub(l)
}

// ProvideSnapshotStore connects the ClickHouse history store, or returns nil
// when it is disabled or unreachable.
func ProvideSnapshotStore(cfg *config.Config, l *applogger.Logger) *internalrepo.CHSnapshotStore {
	if !cfg.ClickHouse.Enabled {
		return nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, 10*time.Second),
		pkgch.WithAsyncInsert(true, true),
	)
	if err != nil {
		l.Warn("clickhouse unavailable, snapshot history disabled", applogger.Error(err))
		return nil
	}

	store := internalrepo.NewCHSnapshotStore(client, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		l.Warn("clickhouse schema init failed, snapshot history disabled", applogger.Error(err))
		_ = store.Close()
		return nil
	}
	return store
}

// ProvideKafkaPublisher creates the snapshot event publisher, or nil when disabled.
func ProvideKafkaPublisher(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) *internalrepo.KafkaSnapshotPublisher {
	if !cfg.Kafka.Enabled {
		return nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		l.Warn("kafka unavailable, snapshot events disabled", applogger.Error(err))
		return nil
	}
	return internalrepo.NewKafkaSnapshotPublisher(producer)
}

// Sinks is every enabled snapshot sink.
type Sinks []repository.SnapshotSink

func ProvideSinks(hub *stream.Hub, store *internalrepo.CHSnapshotStore, pub *internalrepo.KafkaSnapshotPublisher) Sinks {
	sinks := Sinks{hub}
	if store != nil {
		sinks = append(sinks, store)
	}
	if pub != nil {
		sinks = append(sinks, pub)
	}
	return sinks
}

func ProvideMacroService(cfg *config.Config, agg *usecase.MacroAggregator, reg *indicators.Registry, sinks Sinks, l *applogger.Logger, m repository.Metrics) *usecase.MacroService {
	return usecase.NewMacroService(agg, reg, l,
		usecase.WithRefreshInterval(cfg.Refresh.Interval),
		usecase.WithSinks(sinks...),
		usecase.WithServiceMetrics(m),
	)
}

// ProvideRateLimiter creates the inbound per-client limiter, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func ProvideHandler(cfg *config.Config, l *applogger.Logger, svc *usecase.MacroService, reg *indicators.Registry, hub *stream.Hub, store pkgcache.Store, history *internalrepo.CHSnapshotStore) *api.MacroEchoHandler {
	var checks []api.HealthCheck
	if p, ok := store.(pinger); ok {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: p.Ping})
	}
	if history != nil {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: history.Health})
	}
	return api.NewMacroEchoHandler(l, svc, reg,
		api.WithStream(hub, cfg.Server.CORSOrigins),
		api.WithSnapshotWait(cfg.Server.SnapshotWait),
		api.WithHealthChecks(checks...),
	)
}

func ProvideHTTPServer(cfg *config.Config, h *api.MacroEchoHandler, reg *prometheus.Registry, l *applogger.Logger, limiter *ratelimit.Limiter) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil))
	}
	if limiter != nil {
		opts = append(opts, xhttp.WithMiddleware(middleware.RateLimit(limiter, "/api/")))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	svc *usecase.MacroService,
	limiter *ratelimit.Limiter,
	hub *stream.Hub,
	store pkgcache.Store,
	history *internalrepo.CHSnapshotStore,
	pub *internalrepo.KafkaSnapshotPublisher,
) *server.App {
	// Hub first so clients disconnect before the sinks behind it go away.
	closers := []io.Closer{hub}
	if history != nil {
		closers = append(closers, history)
	}
	if pub != nil {
		closers = append(closers, pub)
	}
	if store != nil {
		closers = append(closers, store)
	}

	opts := []server.Option{
		server.WithServices(svc),
		server.WithClosers(closers...),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if limiter != nil {
		opts = append(opts, server.WithSweepers(limiter))
	}
	return server.New(l, srv, opts...)
}
