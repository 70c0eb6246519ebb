// Package genai: circuit breaker guarding the hosted AI endpoint.
package genai

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Breaker configuration constants.
const (
	// DefaultFailureThreshold is the number of consecutive failures that opens the breaker.
	DefaultFailureThreshold = 3
	// DefaultCooldown is how long the breaker stays open before allowing a probe.
	DefaultCooldown = 60 * time.Second
)

// ErrCircuitOpen is returned when the breaker is open and the call is
// rejected without any network I/O.
var ErrCircuitOpen = errors.New("circuit breaker open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker tracks consecutive failures against the AI endpoint and
// fails fast for a cool-down period once the threshold is reached. After the
// cool-down it half-opens and admits exactly one probe request.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
	now       func() time.Time // injectable clock for tests
}

// NewCircuitBreaker creates a breaker with the default threshold and cooldown.
func NewCircuitBreaker() *CircuitBreaker {
	return newCircuitBreaker(DefaultFailureThreshold, DefaultCooldown, time.Now)
}

func newCircuitBreaker(threshold int, cooldown time.Duration, now func() time.Time) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
}

// Allow reports whether a request may be issued. It returns ErrCircuitOpen
// while the breaker is open and within its cool-down. When the cool-down has
// elapsed the breaker half-opens and admits a single probe; further calls are
// rejected until the probe outcome is recorded.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return nil
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			slog.Debug("CircuitBreaker rejecting call", "openedAt", b.openedAt, "failures", b.failures)
			return ErrCircuitOpen
		}
		b.state = breakerHalfOpen
		slog.Info("CircuitBreaker half-open, admitting probe")
		return nil
	case breakerHalfOpen:
		// A probe is already in flight.
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess resets the breaker after a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != breakerClosed {
		slog.Info("CircuitBreaker closing after successful call", "previousFailures", b.failures)
	}
	b.state = breakerClosed
	b.failures = 0
}

// AbortProbe returns a half-open breaker to open and restarts the cool-down.
// Called when an admitted probe exits without a usable outcome (payload
// construction failed before the network, or the caller canceled), so the
// breaker cannot wedge in half-open waiting for a result that never comes.
func (b *CircuitBreaker) AbortProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != breakerHalfOpen {
		return
	}
	b.state = breakerOpen
	b.openedAt = b.now()
	slog.Info("CircuitBreaker probe aborted, reopening", "cooldown", b.cooldown)
}

// RecordFailure counts a failed call; at the threshold the breaker opens.
// A failed half-open probe reopens immediately for another full cool-down.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
		b.openedAt = b.now()
		slog.Warn("CircuitBreaker opened", "failures", b.failures, "cooldown", b.cooldown)
	}
}

// Snapshot returns the breaker's observable state for diagnostics.
func (b *CircuitBreaker) Snapshot() (failures int, open bool, openedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, b.state != breakerClosed, b.openedAt
}
