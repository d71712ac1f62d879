package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open circuit breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for each entry in a
// [FallbackGroup]. Name is overwritten with the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Permanent reports errors that would fail on every backend (bad input,
	// for instance). They are returned at once without trying the next entry.
	Permanent func(error) bool
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// EntryStatus describes one entry of a group.
type EntryStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// FallbackGroup holds a primary and zero or more fallbacks of the same
// provider type. Calls go to the first entry whose breaker admits them.
type FallbackGroup[T any] struct {
	cfg FallbackConfig

	mu      sync.RWMutex
	entries []fallbackEntry[T]
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry. Entries are tried in the order they were
// added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: value, breaker: NewCircuitBreaker(cbCfg)})
}

// Status returns each entry's name and breaker state in order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	fg.mu.RLock()
	defer fg.mu.RUnlock()
	out := make([]EntryStatus, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = EntryStatus{Name: e.name, State: e.breaker.State().String()}
	}
	return out
}

// Execute tries fn against each entry until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry until one succeeds and
// returns its result with the name of the entry that produced it. Entries
// with an open breaker are skipped. When all fail the error wraps
// [ErrAllFailed] and the last entry error.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	res, _, err := executeNamed(fg, fn)
	return res, err
}

func executeNamed[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, string, error) {
	fg.mu.RLock()
	entries := append([]fallbackEntry[T](nil), fg.entries...)
	fg.mu.RUnlock()

	var (
		zero    R
		lastErr error
	)
	for _, e := range entries {
		var res R
		err := e.breaker.Execute(func() error {
			var callErr error
			res, callErr = fn(e.value)
			return callErr
		})
		if err == nil {
			return res, e.name, nil
		}
		if fg.cfg.Permanent != nil && fg.cfg.Permanent(err) {
			return zero, e.name, err
		}
		if !e.breaker.cfg.IsFailure(err) && !errors.Is(err, ErrCircuitOpen) {
			// Cancelled by the caller; the other entries would be too.
			return zero, e.name, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", e.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
