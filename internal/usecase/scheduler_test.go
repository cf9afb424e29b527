package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPull/internal/domain/models"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 23, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func spec(name, source string, rateLimited bool) models.IndicatorSpec {
	return models.IndicatorSpec{Name: name, Source: source, RateLimited: rateLimited}
}

type callLog struct {
	mu       sync.Mutex
	order    []string
	dispatch map[string]time.Time
	done     map[string]time.Time
}

func newCallLog() *callLog {
	return &callLog{dispatch: map[string]time.Time{}, done: map[string]time.Time{}}
}

// upstreamTask simulates an upstream call taking latency on clock.
func (l *callLog) upstreamTask(clock *fakeClock, latency time.Duration) Task {
	return func(ctx context.Context, _ int, s models.IndicatorSpec, gate Gate) {
		if err := gate.Acquire(ctx); err != nil {
			return
		}
		defer gate.Release()

		l.mu.Lock()
		l.order = append(l.order, s.Name)
		l.dispatch[s.Name] = clock.Now()
		l.mu.Unlock()

		clock.Advance(latency)

		l.mu.Lock()
		l.done[s.Name] = clock.Now()
		l.mu.Unlock()
	}
}

func TestScheduler_RunsEveryTask(t *testing.T) {
	specs := []models.IndicatorSpec{
		spec("a", "scb", false),
		spec("b", "riksbank", true),
		spec("c", "scb", false),
		spec("d", "riksbank", true),
		spec("e", "ecb", false),
	}

	var mu sync.Mutex
	var seen []int
	s := NewScheduler(newFakeClock(), 0, nil)
	s.Run(context.Background(), specs, func(_ context.Context, i int, _ models.IndicatorSpec, _ Gate) {
		mu.Lock()
		seen = append(seen, i)
		mu.Unlock()
	})

	sort.Ints(seen)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestScheduler_RateLimitedChainKeepsOrderAndDelay(t *testing.T) {
	clock := newFakeClock()
	delay := 15 * time.Second
	specs := []models.IndicatorSpec{
		spec("repo_rate", "riksbank", true),
		spec("sek_eur", "riksbank", true),
		spec("usd_sek", "riksbank", true),
		spec("usd_eur", "riksbank", true),
	}

	log := newCallLog()
	NewScheduler(clock, delay, nil).Run(context.Background(), specs, log.upstreamTask(clock, 2*time.Second))

	require.Equal(t, []string{"repo_rate", "sek_eur", "usd_sek", "usd_eur"}, log.order)
	for i := 1; i < len(log.order); i++ {
		prev, next := log.order[i-1], log.order[i]
		gap := log.dispatch[next].Sub(log.done[prev])
		assert.GreaterOrEqual(t, gap, delay, "%s dispatched %s after %s completed", next, gap, prev)
	}
	// Delay is measured from completion, so each wait is the full delay.
	assert.Equal(t, []time.Duration{delay, delay, delay}, clock.Sleeps())
}

func TestScheduler_GateSurvivesAcrossPasses(t *testing.T) {
	clock := newFakeClock()
	delay := 15 * time.Second
	s := NewScheduler(clock, delay, nil)
	specs := []models.IndicatorSpec{spec("repo_rate", "riksbank", true)}

	first := newCallLog()
	s.Run(context.Background(), specs, first.upstreamTask(clock, time.Second))

	clock.Advance(5 * time.Second)
	second := newCallLog()
	s.Run(context.Background(), specs, second.upstreamTask(clock, time.Second))

	assert.Equal(t, []time.Duration{10 * time.Second}, clock.Sleeps())
	assert.Equal(t, delay, second.dispatch["repo_rate"].Sub(first.done["repo_rate"]))
}

func TestScheduler_TasksThatSkipTheGateDoNotWait(t *testing.T) {
	clock := newFakeClock()
	specs := []models.IndicatorSpec{
		spec("repo_rate", "riksbank", true),
		spec("sek_eur", "riksbank", true),
	}

	NewScheduler(clock, time.Minute, nil).Run(context.Background(), specs,
		func(context.Context, int, models.IndicatorSpec, Gate) {})

	assert.Empty(t, clock.Sleeps())
}

func TestScheduler_ChainsRunIndependently(t *testing.T) {
	specs := []models.IndicatorSpec{
		spec("repo_rate", "riksbank", true),
		spec("ecb_rate", "ecb", true),
		spec("gdp_qoq", "scb", false),
	}

	ecbDone := make(chan struct{})
	scbDone := make(chan struct{})
	var sawOthers bool

	task := func(ctx context.Context, _ int, s models.IndicatorSpec, _ Gate) {
		switch s.Name {
		case "repo_rate":
			// Only completes promptly if the other two run concurrently.
			select {
			case <-ecbDone:
			case <-time.After(2 * time.Second):
				return
			}
			select {
			case <-scbDone:
				sawOthers = true
			case <-time.After(2 * time.Second):
			}
		case "ecb_rate":
			close(ecbDone)
		case "gdp_qoq":
			close(scbDone)
		}
	}

	NewScheduler(RealClock(), 0, nil).Run(context.Background(), specs, task)
	assert.True(t, sawOthers)
}

func TestScheduler_PanicDoesNotStopOtherTasks(t *testing.T) {
	specs := []models.IndicatorSpec{
		spec("a", "riksbank", true),
		spec("b", "riksbank", true),
		spec("c", "scb", false),
	}

	var mu sync.Mutex
	ran := map[string]bool{}
	NewScheduler(newFakeClock(), 0, nil).Run(context.Background(), specs,
		func(_ context.Context, _ int, s models.IndicatorSpec, _ Gate) {
			if s.Name == "a" {
				panic("boom")
			}
			mu.Lock()
			ran[s.Name] = true
			mu.Unlock()
		})

	assert.Equal(t, map[string]bool{"b": true, "c": true}, ran)
}

func TestThrottle_RealClockGap(t *testing.T) {
	delay := 40 * time.Millisecond
	th := NewThrottle(RealClock(), delay)
	ctx := context.Background()

	require.NoError(t, th.Acquire(ctx))
	th.Release()
	completed := time.Now()

	require.NoError(t, th.Acquire(ctx))
	dispatched := time.Now()
	th.Release()

	assert.GreaterOrEqual(t, dispatched.Sub(completed), delay)
}

func TestThrottle_AcquireHonorsContext(t *testing.T) {
	th := NewThrottle(newFakeClock(), time.Hour)

	require.NoError(t, th.Acquire(context.Background()))
	th.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, th.Acquire(ctx), context.Canceled)

	// A failed acquire must not leave the throttle held.
	require.NoError(t, th.Acquire(context.Background()))
	th.Release()
}
