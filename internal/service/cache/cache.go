package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	pkgcache "MacroPull/pkg/cache"
	"MacroPull/pkg/logger"
)

// Recorder receives cache lookup results: hit, miss, stale, error.
type Recorder interface {
	RecordCache(result string)
}

// ReadThrough is a get-or-compute layer over an optional Store. The store is
// best-effort: when it is nil or failing, compute still runs and its result is
// returned.
type ReadThrough struct {
	store    pkgcache.Store
	log      *logger.Logger
	rec      Recorder
	staleTTL time.Duration
	group    singleflight.Group
}

type Option func(*ReadThrough)

// WithStaleTTL keeps a second copy of every stored value for ttl+d and serves
// it when compute fails. Zero disables stale serving.
func WithStaleTTL(d time.Duration) Option {
	return func(r *ReadThrough) { r.staleTTL = d }
}

func WithRecorder(rec Recorder) Option {
	return func(r *ReadThrough) { r.rec = rec }
}

// NewReadThrough builds the layer. store may be nil to disable caching.
func NewReadThrough(store pkgcache.Store, log *logger.Logger, opts ...Option) *ReadThrough {
	if log == nil {
		log = logger.Nop()
	}
	r := &ReadThrough{store: store, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether a backing store is configured.
func (r *ReadThrough) Enabled() bool { return r.store != nil }

// Result is a value returned by GetOrCompute and where it came from.
type Result[T any] struct {
	Value T
	Hit   bool // served from the live entry
	Stale bool // served from the stale copy after compute failed
}

// GetOrCompute returns the live entry under key or runs compute, storing its
// result for ttl. ttl == 0 computes without storing. Compute errors are never
// stored. Concurrent misses on the same key share one compute call.
func GetOrCompute[T any](ctx context.Context, r *ReadThrough, key string, ttl time.Duration, compute func(context.Context) (T, error)) (Result[T], error) {
	if v, ok := lookup[T](ctx, r, key); ok {
		r.record("hit")
		return Result[T]{Value: v, Hit: true}, nil
	}

	res, err, _ := r.group.Do(key, func() (interface{}, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		r.put(ctx, key, v, ttl)
		return v, nil
	})
	if err == nil {
		r.record("miss")
		return Result[T]{Value: res.(T)}, nil
	}

	if r.staleTTL > 0 && ttl > 0 {
		if v, ok := lookup[T](ctx, r, staleKey(key)); ok {
			r.record("stale")
			r.log.Warn("serving stale cache entry",
				logger.String("key", key),
				logger.Error(err),
			)
			return Result[T]{Value: v, Stale: true}, nil
		}
	}
	r.record("miss")

	var zero T
	return Result[T]{Value: zero}, err
}

func lookup[T any](ctx context.Context, r *ReadThrough, key string) (T, bool) {
	var v T
	if r.store == nil {
		return v, false
	}
	err := r.store.Get(ctx, key, &v)
	if err == nil {
		return v, true
	}
	if !errors.Is(err, pkgcache.ErrCacheMiss) {
		r.record("error")
		r.log.Warn("cache read failed",
			logger.String("key", key),
			logger.Error(err),
		)
	}
	var zero T
	return zero, false
}

func (r *ReadThrough) put(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if r.store == nil || ttl <= 0 {
		return
	}
	if err := r.store.Set(ctx, key, v, ttl); err != nil {
		r.record("error")
		r.log.Warn("cache write failed",
			logger.String("key", key),
			logger.Error(err),
		)
		return
	}
	if r.staleTTL > 0 {
		if err := r.store.Set(ctx, staleKey(key), v, ttl+r.staleTTL); err != nil {
			r.log.Warn("stale cache write failed",
				logger.String("key", key),
				logger.Error(err),
			)
		}
	}
}

// Invalidate drops the live entry under key; the stale copy is kept.
func (r *ReadThrough) Invalidate(ctx context.Context, key string) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

func (r *ReadThrough) record(result string) {
	if r.rec != nil {
		r.rec.RecordCache(result)
	}
}

func staleKey(key string) string {
	return pkgcache.GenerateKey("stale", key)
}
