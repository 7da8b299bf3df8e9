package errors

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// ErrCircuitOpen is returned without calling the guarded function while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes when the breaker trips and how long it stays open.
type BreakerConfig struct {
	ErrorThreshold      float64
	MinRequests         int
	OpenTimeout         time.Duration
	HalfOpenMaxRequests int
}

// DefaultBreakerConfig mirrors the thresholds used for outbound HTTP dependencies.
var DefaultBreakerConfig = BreakerConfig{
	ErrorThreshold:      0.5,
	MinRequests:         10,
	OpenTimeout:         30 * time.Second,
	HalfOpenMaxRequests: 3,
}

type CircuitBreaker struct {
	mu              sync.Mutex
	cfg             BreakerConfig
	now             func() time.Time
	state           BreakerState
	failures        int
	successes       int
	requests        int
	lastFailureTime time.Time
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MinRequests <= 0 {
		cfg = DefaultBreakerConfig
	}
	return &CircuitBreaker{
		cfg:   cfg,
		now:   time.Now,
		state: BreakerClosed,
	}
}

// Call runs fn unless the breaker is open and records its outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	cb.mu.Lock()
	if cb.state == BreakerOpen {
		if cb.now().Sub(cb.lastFailureTime) < cb.cfg.OpenTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = BreakerHalfOpen
		cb.resetLocked()
	}

	if cb.state == BreakerHalfOpen && cb.requests >= cb.cfg.HalfOpenMaxRequests {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	if callErr != nil {
		cb.failures++
		if cb.state == BreakerHalfOpen {
			cb.tripLocked()
			return callErr
		}
		if cb.requests >= cb.cfg.MinRequests && float64(cb.failures)/float64(cb.requests) >= cb.cfg.ErrorThreshold {
			cb.tripLocked()
		}
		return callErr
	}

	cb.successes++
	if cb.state == BreakerHalfOpen && cb.successes >= cb.cfg.HalfOpenMaxRequests {
		cb.state = BreakerClosed
		cb.resetLocked()
	}

	return nil
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) resetLocked() {
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
}

func (cb *CircuitBreaker) tripLocked() {
	cb.state = BreakerOpen
	cb.lastFailureTime = cb.now()
	cb.resetLocked()
}
