// Package resilience wraps external dependencies (the word corpus database,
// the identity provider's JWKS endpoint) with a circuit breaker so a slow or
// failing dependency degrades gracefully instead of stalling every request.
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nntndfrk/alias-game/internal/metrics"
)

// Breaker wraps a named external dependency behind a gobreaker circuit
// breaker, publishing its state transitions to Prometheus.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New constructs a Breaker for the named dependency. maxRequests is the
// number of trial requests let through while half-open; timeout is how long
// the breaker stays open before probing again.
func New(name string, maxRequests uint32, timeout time.Duration) *Breaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker. If the breaker is open it returns
// gobreaker.ErrOpenState immediately without calling fn, after bumping the
// failures counter for the dependency.
func (b *Breaker) Execute(_ context.Context, fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues(b.name).Inc()
	}
	return result, err
}

// IsOpenState reports whether err is the breaker's open-circuit sentinel.
func IsOpenState(err error) bool {
	return err == gobreaker.ErrOpenState
}
