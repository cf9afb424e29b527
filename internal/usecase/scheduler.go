package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MacroPull/internal/domain/models"
	"MacroPull/pkg/logger"
)

// Gate guards one upstream call. Acquire blocks until the call may be
// dispatched; Release marks its completion.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

type openGate struct{}

func (openGate) Acquire(ctx context.Context) error { return nil }
func (openGate) Release()                          {}

// Throttle serializes calls to one upstream source and keeps at least delay
// between the completion of a call and the dispatch of the next one.
type Throttle struct {
	clock Clock
	delay time.Duration
	sem   chan struct{}

	last time.Time // completion of the previous call; guarded by sem
	used bool
}

func NewThrottle(clock Clock, delay time.Duration) *Throttle {
	return &Throttle{clock: clock, delay: delay, sem: make(chan struct{}, 1)}
}

func (t *Throttle) Acquire(ctx context.Context) error {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if t.used {
		if wait := t.last.Add(t.delay).Sub(t.clock.Now()); wait > 0 {
			if err := t.clock.Sleep(ctx, wait); err != nil {
				<-t.sem
				return fmt.Errorf("throttle wait: %w", err)
			}
		}
	}
	return nil
}

func (t *Throttle) Release() {
	t.last = t.clock.Now()
	t.used = true
	<-t.sem
}

// Task runs one indicator of a pass. i is the index of spec in the pass.
type Task func(ctx context.Context, i int, spec models.IndicatorSpec, gate Gate)

// Scheduler runs one aggregation pass: rate-limited indicators sharing a
// source form one sequential chain in configuration order; everything else
// runs concurrently. Chains of different sources run independently.
type Scheduler struct {
	clock Clock
	delay time.Duration
	log   *logger.Logger

	mu        sync.Mutex
	throttles map[string]*Throttle
}

func NewScheduler(clock Clock, delay time.Duration, log *logger.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		clock:     clock,
		delay:     delay,
		log:       log,
		throttles: make(map[string]*Throttle),
	}
}

// Run executes task for every spec and returns when all have finished.
// Throttles outlive a pass, so back-to-back passes still respect the delay.
func (s *Scheduler) Run(ctx context.Context, specs []models.IndicatorSpec, task Task) {
	var (
		wg     sync.WaitGroup
		chains = make(map[string][]int)
		order  []string
	)

	for i, spec := range specs {
		if !spec.RateLimited {
			wg.Add(1)
			go func(i int, spec models.IndicatorSpec) {
				defer wg.Done()
				s.safeRun(ctx, task, i, spec, openGate{})
			}(i, spec)
			continue
		}
		if _, ok := chains[spec.Source]; !ok {
			order = append(order, spec.Source)
		}
		chains[spec.Source] = append(chains[spec.Source], i)
	}

	for _, source := range order {
		idx := chains[source]
		gate := s.throttle(source)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, i := range idx {
				s.safeRun(ctx, task, i, specs[i], gate)
			}
		}()
	}

	wg.Wait()
}

func (s *Scheduler) throttle(source string) *Throttle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.throttles[source]
	if !ok {
		t = NewThrottle(s.clock, s.delay)
		s.throttles[source] = t
	}
	return t
}

func (s *Scheduler) safeRun(ctx context.Context, task Task, i int, spec models.IndicatorSpec, gate Gate) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("indicator task panicked",
				logger.String("indicator", spec.Name),
				logger.Any("panic", r),
			)
		}
	}()
	task(ctx, i, spec, gate)
}
