// Package health serves the liveness and readiness probes of the control
// server.
//
//   - /healthz always returns 200 while the process can serve HTTP.
//   - /readyz returns 200 only when every registered [Checker] passes.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map with the result of each named checker. Checkers run
// concurrently, each bounded by its own timeout.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/streamtts/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the component is
// ready to serve.
type Checker struct {
	// Name is the key of this check in the JSON response.
	Name string

	// Check probes the component. It must respect context cancellation.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...), timeout: checkTimeout}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers and returns 503 when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := h.run(r.Context())

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

func (h *Handler) run(ctx context.Context) []error {
	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			errs[i] = c.Check(cctx)
		}()
	}
	wg.Wait()
	return errs
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ErrQueueFull is reported by [QueueChecker] when no more speech jobs fit.
var ErrQueueFull = errors.New("speech queue is full")

// QueueChecker fails while pending reports capacity or more queued jobs.
func QueueChecker(name string, pending func() int, capacity int) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if capacity > 0 && pending() >= capacity {
			return fmt.Errorf("%w (%d jobs)", ErrQueueFull, capacity)
		}
		return nil
	}}
}

// BreakerChecker fails when every TTS backend reported by status has an open
// circuit breaker.
func BreakerChecker(name string, status func() []resilience.EntryStatus) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		entries := status()
		for _, e := range entries {
			if e.State != resilience.StateOpen.String() {
				return nil
			}
		}
		if len(entries) == 0 {
			return nil
		}
		return fmt.Errorf("all %d tts backends have open circuits", len(entries))
	}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
