package livecheck

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/MrWong99/streamtts/internal/observe"
)

// Change is delivered when the observed status differs from the previous one.
type Change struct {
	From, To Status
	Err      error
}

// MonitorOption configures a [Monitor].
type MonitorOption func(*Monitor)

// WithInterval sets how often the stream is probed. Defaults to 5 s.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithOnChange registers a callback for status changes.
func WithOnChange(fn func(Change)) MonitorOption {
	return func(m *Monitor) { m.onChange = fn }
}

// WithOnCheck registers a callback invoked after every probe.
func WithOnCheck(fn func(Status, error)) MonitorOption {
	return func(m *Monitor) { m.onCheck = fn }
}

// WithMonitorMetrics sets the metrics sink.
func WithMonitorMetrics(met *observe.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = met }
}

// Monitor probes the stream on a fixed interval while started.
type Monitor struct {
	checker  *Checker
	interval time.Duration
	onChange func(Change)
	onCheck  func(Status, error)
	metrics  *observe.Metrics

	// errLog reports probe failures once a minute at the default interval.
	errLog rate.Sometimes

	mu       sync.Mutex
	cron     *cron.Cron
	cancel   context.CancelFunc
	status   Status
	streamID string
}

// NewMonitor returns a stopped Monitor.
func NewMonitor(checker *Checker, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		checker:  checker,
		interval: 5 * time.Second,
		status:   StatusUnknown,
		errLog:   rate.Sometimes{First: 1, Every: 12},
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Status returns the last observed status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start begins probing streamID. Calling Start while running restarts the
// schedule with the new stream id.
func (m *Monitor) Start(ctx context.Context, streamID string) error {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+m.interval.String(), func() { m.probe(ctx) }); err != nil {
		cancel()
		return err
	}
	m.cron, m.cancel, m.streamID = c, cancel, streamID
	m.status = StatusUnknown
	c.Start()
	return nil
}

// Stop halts probing and waits for a running probe to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c, cancel := m.cron, m.cancel
	m.cron, m.cancel = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
}

// Probe runs one check immediately.
func (m *Monitor) Probe(ctx context.Context) Status {
	return m.probe(ctx)
}

func (m *Monitor) probe(ctx context.Context) Status {
	m.mu.Lock()
	streamID := m.streamID
	m.mu.Unlock()

	status, err := m.checker.Check(ctx, streamID)
	if ctx.Err() != nil {
		return m.Status()
	}
	m.metrics.RecordStreamCheck(ctx, string(status))
	if err != nil {
		m.errLog.Do(func() {
			observe.Logger(ctx).Warn("live status check failed", "stream_id", streamID, "err", err)
		})
	}
	if m.onCheck != nil {
		m.onCheck(status, err)
	}

	m.mu.Lock()
	prev := m.status
	// Transport failures keep the previous status.
	var sce *StatusCodeError
	if err != nil && !errors.As(err, &sce) {
		status = prev
	}
	m.status = status
	m.mu.Unlock()

	if prev != status {
		slog.Debug("live status changed", "from", prev, "to", status)
		if m.onChange != nil {
			m.onChange(Change{From: prev, To: status, Err: err})
		}
	}
	return status
}
