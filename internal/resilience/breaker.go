// Package resilience guards calls to external providers with a rate limiter,
// a circuit breaker and retries of transient failures.
package resilience

import (
	"sync"
	"time"

	"github.com/sells-group/prospect-cli/internal/apperr"
)

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops calling a provider after consecutive transient failures and
// lets a single probe through once ResetTimeout has elapsed.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = time.Minute
	}
	return &Breaker{name: name, threshold: threshold, resetTimeout: resetTimeout, now: time.Now}
}

// Allow returns a KindProviderUnavailable error while the breaker is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return apperr.New(apperr.KindProviderUnavailable, b.name, "circuit breaker is open")
		}
		b.state = BreakerHalfOpen
		return nil
	case BreakerHalfOpen:
		return apperr.New(apperr.KindProviderUnavailable, b.name, "circuit breaker probe in flight")
	default:
		return nil
	}
}

// Record feeds a call outcome back into the breaker. Only transient errors
// count as failures; a 4xx means the provider is up.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !IsTransient(err) {
		b.state = BreakerClosed
		b.failures = 0
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
