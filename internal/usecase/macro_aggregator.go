package usecase

import (
	"context"

	"github.com/google/uuid"

	"MacroPull/internal/domain/models"
	"MacroPull/internal/domain/repository"
	svccache "MacroPull/internal/service/cache"
	"MacroPull/internal/services/indicators"
	pkgcache "MacroPull/pkg/cache"
	"MacroPull/pkg/logger"
	"MacroPull/pkg/metrics"
)

// MacroAggregator produces complete snapshots: every configured indicator is
// present in every snapshot, live when possible and at its fallback otherwise.
type MacroAggregator struct {
	fetcher   *ValidatedFetcher
	cache     *svccache.ReadThrough
	scheduler *Scheduler
	clock     Clock
	log       *logger.Logger
	metrics   repository.Metrics
}

type AggregatorOption func(*MacroAggregator)

func WithAggregatorClock(c Clock) AggregatorOption {
	return func(a *MacroAggregator) { a.clock = c }
}

func WithAggregatorMetrics(m repository.Metrics) AggregatorOption {
	return func(a *MacroAggregator) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewMacroAggregator wires the pass. cache may be nil, which disables caching.
func NewMacroAggregator(fetcher *ValidatedFetcher, cache *svccache.ReadThrough, scheduler *Scheduler, log *logger.Logger, opts ...AggregatorOption) *MacroAggregator {
	if log == nil {
		log = logger.Nop()
	}
	if cache == nil {
		cache = svccache.NewReadThrough(nil, log)
	}
	a := &MacroAggregator{
		fetcher:   fetcher,
		cache:     cache,
		scheduler: scheduler,
		clock:     RealClock(),
		log:       log,
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CacheKey is the cache key of the live value of an indicator.
func CacheKey(name string) string {
	return pkgcache.GenerateKey("indicator", name)
}

// ProduceSnapshot runs one aggregation pass. It never fails: an indicator set
// that cannot be keyed by name, or a panic, yields an all-fallback snapshot.
// Per-indicator defects such as a missing fetcher only degrade that indicator.
func (a *MacroAggregator) ProduceSnapshot(ctx context.Context, specs []models.IndicatorSpec) (snap *models.MacroSnapshot) {
	start := a.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("aggregation pass panicked, serving fallbacks", logger.Any("panic", r))
			snap = a.FallbackSnapshot(specs)
		}
		a.metrics.RecordLatency("snapshot", a.clock.Now().Sub(start).Seconds())
	}()

	if err := indicators.ValidateNames(specs); err != nil {
		a.log.Error("invalid indicator set, serving fallbacks", logger.Error(err))
		return a.FallbackSnapshot(specs)
	}

	// A task that panics never writes its slot.
	outcomes := make([]Outcome, len(specs))
	for i := range outcomes {
		outcomes[i] = Outcome{Err: ErrNoValue}
	}
	a.scheduler.Run(ctx, specs, func(ctx context.Context, i int, spec models.IndicatorSpec, gate Gate) {
		outcomes[i] = a.fetchOne(ctx, spec, gate)
	})

	values := make(map[string]models.IndicatorValue, len(specs))
	for i, spec := range specs {
		v := Resolve(spec, outcomes[i])
		values[spec.Name] = v
		a.record(spec, v, outcomes[i].Err)
	}

	snap = &models.MacroSnapshot{
		ID:          uuid.New(),
		GeneratedAt: a.clock.Now(),
		Values:      values,
	}

	counts := snap.Counts()
	a.log.Info("macro snapshot produced",
		logger.String("snapshot_id", snap.ID.String()),
		logger.Int("live", counts[models.ProvenanceLive]),
		logger.Int("stale", counts[models.ProvenanceStale]),
		logger.Int("fallback", counts[models.ProvenanceFallback]),
		logger.Duration("duration_ms", snap.GeneratedAt.Sub(start)),
	)
	return snap
}

// FallbackSnapshot returns a fresh snapshot with every indicator at its fallback.
func (a *MacroAggregator) FallbackSnapshot(specs []models.IndicatorSpec) *models.MacroSnapshot {
	values := FallbackValues(specs)
	for _, spec := range specs {
		if v, ok := values[spec.Name]; ok {
			a.metrics.RecordResolved(spec.Name, string(v.Source), v.Value)
		}
	}
	return &models.MacroSnapshot{
		ID:          uuid.New(),
		GeneratedAt: a.clock.Now(),
		Values:      values,
	}
}

func (a *MacroAggregator) fetchOne(ctx context.Context, spec models.IndicatorSpec, gate Gate) Outcome {
	res, err := svccache.GetOrCompute(ctx, a.cache, CacheKey(spec.Name), spec.TTL,
		func(ctx context.Context) (models.Observation, error) {
			// Only real upstream calls pass the gate; cache hits never reach here.
			if err := gate.Acquire(ctx); err != nil {
				return models.Observation{}, err
			}
			defer gate.Release()
			return a.fetcher.FetchValidated(ctx, spec)
		})
	return Outcome{Obs: res.Value, Err: err, Stale: res.Stale}
}

func (a *MacroAggregator) record(spec models.IndicatorSpec, v models.IndicatorValue, err error) {
	a.metrics.RecordResolved(spec.Name, string(v.Source), v.Value)

	fields := []logger.Field{
		logger.String("indicator", spec.Name),
		logger.String("provenance", string(v.Source)),
	}
	if v.Value != nil {
		fields = append(fields, logger.Float64("value", *v.Value))
	}

	switch {
	case v.Value == nil:
		a.log.Error("indicator has no value and no fallback", fields...)
	case v.Source == models.ProvenanceFallback:
		a.log.Warn("indicator using fallback", append(fields, logger.Error(err))...)
	default:
		a.log.Debug("indicator resolved", fields...)
	}
}
