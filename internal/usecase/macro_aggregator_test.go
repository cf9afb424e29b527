package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPull/internal/domain/models"
	svccache "MacroPull/internal/service/cache"
	pkgcache "MacroPull/pkg/cache"
)

type countingFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (models.Observation, error)
}

func (f *countingFetcher) Fetch(ctx context.Context) (models.Observation, error) {
	f.calls.Add(1)
	return f.fn(ctx)
}

func returning(v float64) *countingFetcher {
	return &countingFetcher{fn: func(context.Context) (models.Observation, error) {
		return models.Observation{Value: v, Period: "2025-06-23"}, nil
	}}
}

func failing(err error) *countingFetcher {
	return &countingFetcher{fn: func(context.Context) (models.Observation, error) {
		return models.Observation{}, err
	}}
}

func hanging() *countingFetcher {
	return &countingFetcher{fn: func(ctx context.Context) (models.Observation, error) {
		<-ctx.Done()
		return models.Observation{}, ctx.Err()
	}}
}

func repoRate(f models.Fetcher) models.IndicatorSpec {
	return models.IndicatorSpec{
		Name:        "repo_rate",
		Source:      "riksbank",
		Fetch:       f,
		ValidRange:  models.Range{Min: 0, Max: 10},
		Fallback:    models.Float(2.25),
		TTL:         30 * time.Minute,
		RateLimited: true,
	}
}

type aggFixture struct {
	clock *fakeClock
	store *pkgcache.MemoryCache
	agg   *MacroAggregator
}

func newAggFixture(t *testing.T, timeout time.Duration, cacheOpts ...svccache.Option) *aggFixture {
	t.Helper()
	clock := newFakeClock()
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0), pkgcache.WithMemoryClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })

	rt := svccache.NewReadThrough(store, nil, cacheOpts...)
	agg := NewMacroAggregator(
		NewValidatedFetcher(timeout, nil),
		rt,
		NewScheduler(clock, 15*time.Second, nil),
		nil,
		WithAggregatorClock(clock),
	)
	return &aggFixture{clock: clock, store: store, agg: agg}
}

func TestProduceSnapshot_RepoRate(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *countingFetcher
		want    models.IndicatorValue
	}{
		{
			name:    "plausible live value",
			fetcher: returning(2.00),
			want:    models.IndicatorValue{Value: models.Float(2.00), Source: models.ProvenanceLive, Period: "2025-06-23"},
		},
		{
			name:    "implausible value",
			fetcher: returning(15.0),
			want:    models.IndicatorValue{Value: models.Float(2.25), Source: models.ProvenanceFallback},
		},
		{
			name:    "upstream timeout",
			fetcher: hanging(),
			want:    models.IndicatorValue{Value: models.Float(2.25), Source: models.ProvenanceFallback},
		},
		{
			name:    "upstream error",
			fetcher: failing(errors.New("503")),
			want:    models.IndicatorValue{Value: models.Float(2.25), Source: models.ProvenanceFallback},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAggFixture(t, 50*time.Millisecond)
			snap := f.agg.ProduceSnapshot(context.Background(), []models.IndicatorSpec{repoRate(tt.fetcher)})

			require.NotNil(t, snap)
			assert.Equal(t, map[string]models.IndicatorValue{"repo_rate": tt.want}, snap.Values)
			assert.EqualValues(t, 1, tt.fetcher.calls.Load())
		})
	}
}

func TestProduceSnapshot_EveryIndicatorPresent(t *testing.T) {
	f := newAggFixture(t, time.Second)
	specs := []models.IndicatorSpec{
		repoRate(failing(errors.New("down"))),
		{Name: "gdp_qoq", Source: "scb", Fetch: returning(0.4), ValidRange: models.Range{Min: -10, Max: 10}, Fallback: models.Float(0.2)},
		{Name: "inflation_yoy", Source: "scb", Fetch: returning(99), ValidRange: models.Range{Min: -5, Max: 20}, Fallback: models.Float(2.3)},
	}

	snap := f.agg.ProduceSnapshot(context.Background(), specs)

	require.Len(t, snap.Values, 3)
	assert.Equal(t, models.ProvenanceFallback, snap.Values["repo_rate"].Source)
	assert.Equal(t, models.ProvenanceLive, snap.Values["gdp_qoq"].Source)
	assert.InDelta(t, 0.4, *snap.Values["gdp_qoq"].Value, 1e-9)
	assert.Equal(t, models.ProvenanceFallback, snap.Values["inflation_yoy"].Source)
	assert.Equal(t, map[models.Provenance]int{models.ProvenanceLive: 1, models.ProvenanceFallback: 2}, snap.Counts())
	assert.NotEqual(t, uuid.Nil, snap.ID)
}

func TestProduceSnapshot_CacheHitSkipsUpstreamAndGate(t *testing.T) {
	f := newAggFixture(t, time.Second)
	fetcher := returning(2.00)
	specs := []models.IndicatorSpec{repoRate(fetcher)}

	first := f.agg.ProduceSnapshot(context.Background(), specs)
	second := f.agg.ProduceSnapshot(context.Background(), specs)

	assert.EqualValues(t, 1, fetcher.calls.Load())
	assert.Empty(t, f.clock.Sleeps())
	assert.Equal(t, first.Values, second.Values)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestProduceSnapshot_ExpiredEntryRefetches(t *testing.T) {
	f := newAggFixture(t, time.Second)
	fetcher := returning(2.00)
	specs := []models.IndicatorSpec{repoRate(fetcher)}

	f.agg.ProduceSnapshot(context.Background(), specs)
	f.clock.Advance(31 * time.Minute)
	f.agg.ProduceSnapshot(context.Background(), specs)

	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestProduceSnapshot_FailuresAreNotCached(t *testing.T) {
	f := newAggFixture(t, time.Second)
	fetcher := failing(errors.New("down"))
	specs := []models.IndicatorSpec{repoRate(fetcher)}

	f.agg.ProduceSnapshot(context.Background(), specs)
	f.agg.ProduceSnapshot(context.Background(), specs)

	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestProduceSnapshot_StaleValueAfterUpstreamFailure(t *testing.T) {
	f := newAggFixture(t, time.Second, svccache.WithStaleTTL(24*time.Hour))

	calls := 0
	fetcher := &countingFetcher{fn: func(context.Context) (models.Observation, error) {
		calls++
		if calls == 1 {
			return models.Observation{Value: 2.00, Period: "2025-06-23"}, nil
		}
		return models.Observation{}, errors.New("down")
	}}
	specs := []models.IndicatorSpec{repoRate(fetcher)}

	f.agg.ProduceSnapshot(context.Background(), specs)
	f.clock.Advance(time.Hour)
	snap := f.agg.ProduceSnapshot(context.Background(), specs)

	assert.Equal(t, models.IndicatorValue{Value: models.Float(2.00), Source: models.ProvenanceStale, Period: "2025-06-23"}, snap.Values["repo_rate"])
}

func TestProduceSnapshot_MissingFallbackRendersNull(t *testing.T) {
	f := newAggFixture(t, time.Second)
	s := repoRate(failing(errors.New("down")))
	s.Fallback = nil

	snap := f.agg.ProduceSnapshot(context.Background(), []models.IndicatorSpec{s})

	v, ok := snap.Values["repo_rate"]
	require.True(t, ok)
	assert.Nil(t, v.Value)
	assert.Equal(t, models.ProvenanceFallback, v.Source)
}

func TestProduceSnapshot_InvalidSetServesFallbacks(t *testing.T) {
	f := newAggFixture(t, time.Second)
	fetcher := returning(2.00)
	specs := []models.IndicatorSpec{repoRate(fetcher), repoRate(fetcher)}

	snap := f.agg.ProduceSnapshot(context.Background(), specs)

	assert.Zero(t, fetcher.calls.Load())
	assert.Equal(t, map[string]models.IndicatorValue{
		"repo_rate": {Value: models.Float(2.25), Source: models.ProvenanceFallback},
	}, snap.Values)
}

func TestProduceSnapshot_PanickingFetcherIsIsolated(t *testing.T) {
	f := newAggFixture(t, time.Second)
	boom := &countingFetcher{fn: func(context.Context) (models.Observation, error) { panic("boom") }}
	specs := []models.IndicatorSpec{
		repoRate(boom),
		{Name: "gdp_qoq", Source: "scb", Fetch: returning(0.4), ValidRange: models.Range{Min: -10, Max: 10}, Fallback: models.Float(0.2)},
	}

	snap := f.agg.ProduceSnapshot(context.Background(), specs)

	assert.Equal(t, models.ProvenanceFallback, snap.Values["repo_rate"].Source)
	assert.Equal(t, models.ProvenanceLive, snap.Values["gdp_qoq"].Source)
}

type panickingStore struct{}

func (panickingStore) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (panickingStore) Get(context.Context, string, interface{}) error                { panic("store corrupted") }
func (panickingStore) Delete(context.Context, ...string) error                       { return nil }
func (panickingStore) Exists(context.Context, ...string) (bool, error)               { return false, nil }
func (panickingStore) Close() error                                                  { return nil }

func TestProduceSnapshot_PanickingStoreFallsBack(t *testing.T) {
	agg := NewMacroAggregator(
		NewValidatedFetcher(time.Second, nil),
		svccache.NewReadThrough(panickingStore{}, nil),
		NewScheduler(newFakeClock(), 15*time.Second, nil),
		nil,
	)
	fetcher := failing(errors.New("503"))

	snap := agg.ProduceSnapshot(context.Background(), []models.IndicatorSpec{repoRate(fetcher)})

	assert.Equal(t, models.IndicatorValue{Value: models.Float(2.25), Source: models.ProvenanceFallback}, snap.Values["repo_rate"])
}

func TestProduceSnapshot_MissingFetcherOnlyDegradesThatIndicator(t *testing.T) {
	f := newAggFixture(t, time.Second)
	specs := []models.IndicatorSpec{
		{Name: "gdp_qoq", Source: "scb", Fetch: returning(0.4), ValidRange: models.Range{Min: -10, Max: 10}, Fallback: models.Float(0.2)},
		{Name: "ecb_rate", Source: "ecb", ValidRange: models.Range{Min: -1, Max: 10}, Fallback: models.Float(2.15)},
	}

	snap := f.agg.ProduceSnapshot(context.Background(), specs)

	assert.Equal(t, models.IndicatorValue{Value: models.Float(0.4), Source: models.ProvenanceLive, Period: "2025-06-23"}, snap.Values["gdp_qoq"])
	assert.Equal(t, models.IndicatorValue{Value: models.Float(2.15), Source: models.ProvenanceFallback}, snap.Values["ecb_rate"])
}

func TestProduceSnapshot_ConcurrentFetchesTakeTheSlowest(t *testing.T) {
	const delay = 150 * time.Millisecond
	sleepy := func(obs models.Observation, err error) *countingFetcher {
		return &countingFetcher{fn: func(ctx context.Context) (models.Observation, error) {
			select {
			case <-time.After(delay):
				return obs, err
			case <-ctx.Done():
				return models.Observation{}, ctx.Err()
			}
		}}
	}
	agg := NewMacroAggregator(NewValidatedFetcher(time.Second, nil), nil, NewScheduler(RealClock(), 15*time.Second, nil), nil)
	specs := []models.IndicatorSpec{
		{Name: "inflation_yoy", Source: "scb", Fetch: sleepy(models.Observation{}, errors.New("502")), ValidRange: models.Range{Min: -5, Max: 20}, Fallback: models.Float(2.3)},
		{Name: "gdp_qoq", Source: "scb", Fetch: sleepy(models.Observation{Value: 0.4}, nil), ValidRange: models.Range{Min: -10, Max: 10}, Fallback: models.Float(0.2)},
	}

	start := time.Now()
	snap := agg.ProduceSnapshot(context.Background(), specs)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*delay-20*time.Millisecond)
	assert.Equal(t, models.ProvenanceLive, snap.Values["gdp_qoq"].Source)
	assert.InDelta(t, 0.4, *snap.Values["gdp_qoq"].Value, 1e-9)
	assert.Equal(t, models.ProvenanceFallback, snap.Values["inflation_yoy"].Source)
}

func TestProduceSnapshot_StampedAfterAllTasks(t *testing.T) {
	f := newAggFixture(t, time.Second)
	slow := &countingFetcher{fn: func(context.Context) (models.Observation, error) {
		f.clock.Advance(3 * time.Second)
		return models.Observation{Value: 2.0}, nil
	}}
	start := f.clock.Now()

	snap := f.agg.ProduceSnapshot(context.Background(), []models.IndicatorSpec{repoRate(slow)})

	assert.Equal(t, start.Add(3*time.Second), snap.GeneratedAt)
}

func TestResolve(t *testing.T) {
	s := repoRate(nil)

	assert.Equal(t, models.ProvenanceLive, Resolve(s, Outcome{Obs: models.Observation{Value: 10}}).Source, "range is inclusive")
	assert.Equal(t, models.ProvenanceFallback, Resolve(s, Outcome{Obs: models.Observation{Value: 10.01}}).Source)
	assert.Equal(t, models.ProvenanceStale, Resolve(s, Outcome{Obs: models.Observation{Value: 2}, Stale: true}).Source)

	fb := Resolve(s, Outcome{Err: ErrNoValue})
	assert.Equal(t, models.IndicatorValue{Value: models.Float(2.25), Source: models.ProvenanceFallback}, fb)
	// The fallback must be a copy of the configured constant.
	*fb.Value = 99
	assert.Equal(t, 2.25, *s.Fallback)
}
