package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"MacroPull/internal/domain/models"
	"MacroPull/internal/domain/repository"
	"MacroPull/internal/service/breaker"
	"MacroPull/pkg/logger"
	"MacroPull/pkg/metrics"
)

var (
	// ErrNoValue means the upstream call produced nothing usable.
	ErrNoValue = errors.New("no value")
	// ErrOutOfRange means the upstream answered with an implausible number.
	ErrOutOfRange = errors.New("value out of range")
)

// Fetch outcomes as logged and counted.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeOutOfRange  = "out_of_range"
	OutcomeBreakerOpen = "breaker_open"
)

// ValidatedFetcher performs one bounded upstream call and checks the result
// against the indicator's plausibility range.
type ValidatedFetcher struct {
	timeout  time.Duration
	breakers *breaker.Set
	log      *logger.Logger
	metrics  repository.Metrics
}

type FetcherOption func(*ValidatedFetcher)

// WithBreakers routes every call through the per-source circuit breakers.
func WithBreakers(b *breaker.Set) FetcherOption {
	return func(f *ValidatedFetcher) { f.breakers = b }
}

func WithFetcherMetrics(m repository.Metrics) FetcherOption {
	return func(f *ValidatedFetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

func NewValidatedFetcher(timeout time.Duration, log *logger.Logger, opts ...FetcherOption) *ValidatedFetcher {
	if log == nil {
		log = logger.Nop()
	}
	f := &ValidatedFetcher{
		timeout: timeout,
		log:     log,
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchValidated returns the observation for spec, or an error wrapping
// ErrNoValue or ErrOutOfRange. It never panics on upstream misbehaviour.
func (f *ValidatedFetcher) FetchValidated(ctx context.Context, spec models.IndicatorSpec) (models.Observation, error) {
	start := time.Now()
	obs, err := f.call(ctx, spec)

	outcome := OutcomeOK
	switch {
	case errors.Is(err, breaker.ErrOpen):
		outcome = OutcomeBreakerOpen
	case errors.Is(err, context.DeadlineExceeded):
		outcome = OutcomeTimeout
	case err != nil:
		outcome = OutcomeError
	case math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) || !spec.ValidRange.Contains(obs.Value):
		outcome = OutcomeOutOfRange
	}
	f.metrics.RecordFetch(spec.Source, spec.Name, outcome)

	fields := []logger.Field{
		logger.String("indicator", spec.Name),
		logger.String("source", spec.Source),
		logger.String("outcome", outcome),
		logger.Duration("duration_ms", time.Since(start)),
	}

	switch outcome {
	case OutcomeOK:
		f.log.Debug("upstream fetch", append(fields,
			logger.Float64("value", obs.Value),
			logger.String("period", obs.Period))...)
		return obs, nil
	case OutcomeOutOfRange:
		f.log.Warn("upstream value rejected", append(fields,
			logger.Float64("value", obs.Value),
			logger.Float64("min", spec.ValidRange.Min),
			logger.Float64("max", spec.ValidRange.Max))...)
		return models.Observation{}, fmt.Errorf("%s: %w: %v", spec.Name, ErrOutOfRange, obs.Value)
	default:
		f.log.Warn("upstream fetch failed", append(fields, logger.Error(err))...)
		return models.Observation{}, fmt.Errorf("%s: %w: %w", spec.Name, ErrNoValue, err)
	}
}

func (f *ValidatedFetcher) call(ctx context.Context, spec models.IndicatorSpec) (obs models.Observation, err error) {
	if spec.Fetch == nil {
		return obs, errors.New("no fetcher configured")
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	fetch := func() (o models.Observation, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("fetcher panicked: %v", r)
			}
		}()
		return spec.Fetch.Fetch(ctx)
	}

	if f.breakers == nil {
		return fetch()
	}
	return f.breakers.Execute(spec.Source, fetch)
}

// CountsAgainstSource reports whether err should count as an upstream
// failure for circuit breaking. Caller cancellation does not.
func CountsAgainstSource(err error) bool {
	return !errors.Is(err, context.Canceled)
}
