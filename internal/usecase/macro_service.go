package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"MacroPull/internal/domain/models"
	"MacroPull/internal/domain/repository"
	"MacroPull/internal/domain/service"
	"MacroPull/pkg/logger"
	"MacroPull/pkg/metrics"
)

const defaultPublishTimeout = 10 * time.Second

// MacroService owns the latest snapshot, refreshes it periodically and fans
// new snapshots out to the configured sinks.
type MacroService struct {
	agg      *MacroAggregator
	registry service.Registry
	sinks    []repository.SnapshotSink
	interval time.Duration
	log      *logger.Logger
	metrics  repository.Metrics

	latest atomic.Pointer[models.MacroSnapshot]
	group  singleflight.Group

	publishTimeout time.Duration
	publishWG      sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	loopWG sync.WaitGroup
}

var _ service.SnapshotProvider = (*MacroService)(nil)

type ServiceOption func(*MacroService)

// WithRefreshInterval sets the background refresh period. Zero disables the loop.
func WithRefreshInterval(d time.Duration) ServiceOption {
	return func(s *MacroService) { s.interval = d }
}

func WithSinks(sinks ...repository.SnapshotSink) ServiceOption {
	return func(s *MacroService) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

func WithServiceMetrics(m repository.Metrics) ServiceOption {
	return func(s *MacroService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithPublishTimeout(d time.Duration) ServiceOption {
	return func(s *MacroService) { s.publishTimeout = d }
}

func NewMacroService(agg *MacroAggregator, registry service.Registry, log *logger.Logger, opts ...ServiceOption) *MacroService {
	if log == nil {
		log = logger.Nop()
	}
	s := &MacroService{
		agg:            agg,
		registry:       registry,
		log:            log,
		metrics:        metrics.Nop{},
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetMacroSnapshot returns the latest snapshot when a refresh loop keeps it
// current. Without one (zero interval) every call runs a shared pass, which the
// per-indicator cache keeps cheap. If ctx ends before the pass completes, the
// previous snapshot or an all-fallback one is returned; the pass itself keeps
// running for later callers.
func (s *MacroService) GetMacroSnapshot(ctx context.Context) *models.MacroSnapshot {
	if snap := s.latest.Load(); snap != nil && s.interval > 0 {
		return snap
	}

	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*models.MacroSnapshot)
	case <-ctx.Done():
		if snap := s.latest.Load(); snap != nil {
			return snap
		}
		s.log.Warn("snapshot not ready before deadline, serving fallbacks", logger.Error(ctx.Err()))
		return s.agg.FallbackSnapshot(s.registry.Specs())
	}
}

// Latest returns the last produced snapshot or nil.
func (s *MacroService) Latest() *models.MacroSnapshot {
	return s.latest.Load()
}

// Lookup returns one indicator from the current snapshot.
func (s *MacroService) Lookup(ctx context.Context, name string) (models.IndicatorValue, bool) {
	snap := s.GetMacroSnapshot(ctx)
	v, ok := snap.Values[name]
	return v, ok
}

// Refresh runs one pass, stores it as latest and publishes it. Concurrent
// calls share one pass. A pass whose ctx ended is neither stored nor published.
func (s *MacroService) Refresh(ctx context.Context) *models.MacroSnapshot {
	v, _, _ := s.group.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx), nil
	})
	return v.(*models.MacroSnapshot)
}

func (s *MacroService) refresh(ctx context.Context) *models.MacroSnapshot {
	snap := s.agg.ProduceSnapshot(ctx, s.registry.Specs())
	if err := ctx.Err(); err != nil {
		// Cut short, so its values are mostly fallbacks.
		s.log.Warn("refresh interrupted, snapshot discarded",
			logger.String("snapshot_id", snap.ID.String()),
			logger.Error(err),
		)
		if prev := s.latest.Load(); prev != nil {
			return prev
		}
		return snap
	}
	s.latest.Store(snap)
	s.publish(snap)
	return snap
}

func (s *MacroService) publish(snap *models.MacroSnapshot) {
	for _, sink := range s.sinks {
		s.publishWG.Add(1)
		go func(sink repository.SnapshotSink) {
			defer s.publishWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
			defer cancel()

			if err := sink.Publish(ctx, snap); err != nil {
				s.metrics.RecordSinkError(sink.Name())
				s.log.Warn("snapshot sink failed",
					logger.String("sink", sink.Name()),
					logger.String("snapshot_id", snap.ID.String()),
					logger.Error(err),
				)
			}
		}(sink)
	}
}

// Start launches the refresh loop: one pass immediately, then one per interval.
// With a zero interval only the initial pass runs.
func (s *MacroService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		s.Refresh(ctx)
		if s.interval <= 0 {
			return
		}

		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.Refresh(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.log.Info("macro refresh loop started", logger.Duration("interval_ms", s.interval))
}

// Stop ends the refresh loop and waits for in-flight publishes.
func (s *MacroService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.loopWG.Wait()
	s.publishWG.Wait()
}
