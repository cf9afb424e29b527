package breaker

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"MacroPull/internal/domain/models"
	"MacroPull/pkg/logger"
)

// ErrOpen is returned without calling upstream while a source's breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// StateRecorder receives breaker state changes (0 closed, 1 half-open, 2 open).
type StateRecorder interface {
	RecordBreakerState(source string, state int)
}

// Settings configures every per-source breaker.
type Settings struct {
	// Consecutive failures that open the breaker.
	FailureThreshold uint32
	// How long the breaker stays open before letting probe requests through.
	OpenTimeout time.Duration
	// Requests allowed while half-open.
	HalfOpenRequests uint32
	// Countable reports whether err counts as an upstream failure. Nil counts every error.
	Countable func(err error) bool
}

// Set holds one breaker per upstream source, created on first use.
type Set struct {
	settings Settings
	log      *logger.Logger
	rec      StateRecorder

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[models.Observation]
}

func NewSet(settings Settings, log *logger.Logger, rec StateRecorder) *Set {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 3
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Set{
		settings: settings,
		log:      log,
		rec:      rec,
		breakers: make(map[string]*gobreaker.CircuitBreaker[models.Observation]),
	}
}

// Execute runs fn through the breaker of source.
func (s *Set) Execute(source string, fn func() (models.Observation, error)) (models.Observation, error) {
	obs, err := s.get(source).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return obs, ErrOpen
	}
	return obs, err
}

// State returns the breaker state of source; unknown sources are closed.
func (s *Set) State(source string) gobreaker.State {
	s.mu.Lock()
	cb, ok := s.breakers[source]
	s.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func (s *Set) get(source string) *gobreaker.CircuitBreaker[models.Observation] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[source]; ok {
		return cb
	}

	threshold := s.settings.FailureThreshold
	countable := s.settings.Countable
	cb := gobreaker.NewCircuitBreaker[models.Observation](gobreaker.Settings{
		Name:        source,
		MaxRequests: s.settings.HalfOpenRequests,
		Timeout:     s.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (countable != nil && !countable(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn("circuit breaker state change",
				logger.String("source", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			if s.rec != nil {
				s.rec.RecordBreakerState(name, int(to))
			}
		},
	})
	s.breakers[source] = cb
	if s.rec != nil {
		s.rec.RecordBreakerState(source, int(gobreaker.StateClosed))
	}
	return cb
}
