// Package resilience keeps speech working when a TTS backend goes down.
//
// [CircuitBreaker] stops calling a backend after repeated failures and probes
// it again after a cooldown. [FallbackGroup] orders several backends of the
// same type, each behind its own breaker, and [TTSFallback] exposes such a
// group as a single tts.Provider.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again. Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. By
	// default context cancellation and deadline errors do not, since they
	// come from the caller rather than the backend.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	probesStarted int
	probesPassed  int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero config fields take
// their defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// countsAsFailure is the default IsFailure.
func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, changed, err := cb.admit()
	cb.notify(changed)
	if err != nil {
		return err
	}

	callErr := fn()

	cb.notify(cb.record(probe, callErr))
	return callErr
}

// transition is a pending state-change notification.
type transition struct {
	from, to State
	ok       bool
}

// admit decides whether a call may proceed. probe reports whether the call
// is a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, changed transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, transition{}, ErrCircuitOpen
		}
		changed = cb.setLocked(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probesStarted-cb.probesPassed > 0 || cb.probesStarted >= cb.cfg.HalfOpenMax {
			// A probe is already in flight.
			return false, changed, ErrCircuitOpen
		}
		cb.probesStarted++
		return true, changed, nil
	}
	return false, changed, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := cb.cfg.IsFailure(err)
	switch {
	case probe && failed:
		slog.Warn("circuit breaker re-opened after failed probe", "name", cb.cfg.Name, "err", err)
		return cb.setLocked(StateOpen)
	case probe:
		if err != nil {
			// Not the backend's fault; let the next call probe again.
			cb.probesStarted--
			return transition{}
		}
		cb.probesPassed++
		if cb.probesPassed >= cb.cfg.HalfOpenMax {
			slog.Info("circuit breaker closed", "name", cb.cfg.Name)
			return cb.setLocked(StateClosed)
		}
		return transition{}
	case failed:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", cb.failures, "err", err)
			return cb.setLocked(StateOpen)
		}
		return transition{}
	case err == nil:
		cb.failures = 0
	}
	return transition{}
}

// setLocked moves to state and resets its counters. cb.mu must be held.
func (cb *CircuitBreaker) setLocked(state State) transition {
	from := cb.state
	cb.state = state
	cb.probesStarted, cb.probesPassed = 0, 0
	switch state {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	case StateClosed:
		cb.failures = 0
	}
	return transition{from: from, to: state, ok: from != state}
}

func (cb *CircuitBreaker) notify(t transition) {
	if t.ok && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.setLocked(StateClosed)
	cb.mu.Unlock()
	cb.notify(t)
	slog.Info("circuit breaker manually reset", "name", cb.cfg.Name)
}
