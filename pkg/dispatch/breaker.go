package dispatch

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state. It is an explicit, inspectable
// value so tests can drive and assert the transitions deterministically.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// ErrCircuitOpen is returned when a call is short-circuited by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig parameterizes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker from CLOSED to OPEN.
	FailureThreshold int
	// CoolDown is how long the breaker stays OPEN before probing recovery.
	CoolDown time.Duration
	// HalfOpenProbes is how many consecutive probe successes close the
	// breaker again from HALF_OPEN.
	HalfOpenProbes int
}

// CircuitBreaker guards an unreliable downstream. While OPEN, calls fail
// immediately with ErrCircuitOpen instead of piling up against a dead
// endpoint; after the cool-down a limited number of probes decide whether
// to close or re-open.
type CircuitBreaker struct {
	mu       sync.Mutex
	config   BreakerConfig
	now      func() time.Time
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time
}

// NewCircuitBreaker creates a breaker in the CLOSED state.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  BreakerClosed,
	}
}

// NewCircuitBreakerWithClock creates a breaker with an injectable clock so
// tests can step through the cool-down without sleeping.
func NewCircuitBreakerWithClock(config BreakerConfig, now func() time.Time) *CircuitBreaker {
	b := NewCircuitBreaker(config)
	b.now = now
	return b
}

// State returns the current breaker state, accounting for an elapsed
// cool-down.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Do runs fn through the breaker. An OPEN breaker short-circuits with
// ErrCircuitOpen; otherwise fn's outcome feeds the failure counters.
func (b *CircuitBreaker) Do(fn func() error) error {
	b.mu.Lock()
	b.refresh()
	if b.state == BreakerOpen {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// refresh moves OPEN to HALF_OPEN once the cool-down has elapsed.
// Callers must hold the mutex.
func (b *CircuitBreaker) refresh() {
	if b.state == BreakerOpen && !b.now().Before(b.openedAt.Add(b.config.CoolDown)) {
		b.state = BreakerHalfOpen
		b.probes = 0
	}
}

func (b *CircuitBreaker) onFailure() {
	switch b.state {
	case BreakerHalfOpen:
		// A failed probe re-opens immediately.
		b.trip()
	case BreakerClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.trip()
		}
	}
}

func (b *CircuitBreaker) onSuccess() {
	switch b.state {
	case BreakerHalfOpen:
		b.probes++
		if b.probes >= b.config.HalfOpenProbes {
			b.state = BreakerClosed
			b.failures = 0
		}
	case BreakerClosed:
		b.failures = 0
	}
}

func (b *CircuitBreaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
	b.probes = 0
}
