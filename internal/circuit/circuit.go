// Package circuit wraps sony/gobreaker with the observable state machine
// spec.md §4.2 describes: CLOSED, OPEN, HALF_OPEN, a consecutive-failure
// threshold, and a recovery timeout. It is an opt-in wrapper a connector
// can place around its send function; the connector itself decides
// whether it participates.
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors gobreaker.State with the names spec.md uses.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config configures a Breaker. Zero values fall back to spec.md defaults.
type Config struct {
	Name             string
	FailureThreshold uint32        // consecutive failures to open; default 5
	RecoveryTimeout  time.Duration // OPEN -> HALF_OPEN cooldown; default 60s
}

// ErrCircuitOpen is returned by Call when the breaker short-circuits.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Breaker wraps a send function with circuit-breaker protection.
type Breaker struct {
	cb *gobreaker.CircuitBreaker

	mu          sync.Mutex
	lastFailure time.Time
}

// New builds a Breaker. A half-open trial allows exactly one request
// through, matching the "one success -> CLOSED" contract in spec.md §8.
func New(cfg Config) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.RecoveryTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    0, // never reset counts while CLOSED; only consecutive failures matter
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call executes fn under the breaker. It returns ErrCircuitOpen
// (gobreaker's own sentinel) without invoking fn when the breaker is OPEN.
func (b *Breaker) Call(_ context.Context, fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		callErr := fn()
		if callErr != nil {
			b.mu.Lock()
			b.lastFailure = time.Now()
			b.mu.Unlock()
		}
		return nil, callErr
	})
	return err
}

// LastFailure returns the time of the most recent failed call, or the
// zero time if none has occurred yet.
func (b *Breaker) LastFailure() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Counts exposes the observable failure bookkeeping from spec.md §4.2:
// current state and failure counts. The last recorded failure time is
// not part of it; Breaker.LastFailure returns that.
type Counts struct {
	State               State
	ConsecutiveFailures uint32
	Requests            uint32
	TotalFailures       uint32
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Counts {
	c := b.cb.Counts()
	return Counts{
		State:               b.State(),
		ConsecutiveFailures: c.ConsecutiveFailures,
		Requests:            c.Requests,
		TotalFailures:       c.TotalFailures,
	}
}
