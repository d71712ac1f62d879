// Package supervisor owns the connection to a livestream chat and the retry
// state machine around it.
//
// States move Disconnected → Connecting → Connected on success. Failures are
// classified with [chat.Classify]:
//
//   - not found: Error, no retry
//   - rate limited: RateLimited, cooldown grows by [RetryPolicy.Next], retry
//     until MaxAttempts consecutive failures, then Error
//   - blocked: Error, cooldown set to BlockedCooldown, no retry
//   - transient network: Error, retry after the current cooldown until
//     MaxAttempts consecutive failures
//   - anything else: Error, no retry
//
// Retry waits are a cancellable countdown that reports the remaining time
// every tick. [Supervisor.Stop] is valid in every state and always ends in
// Disconnected.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/streamtts/internal/chat"
	"github.com/MrWong99/streamtts/internal/observe"
)

// DefaultCountdownTick is how often the remaining retry wait is reported.
const DefaultCountdownTick = 5 * time.Second

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRateLimited
	StateError
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRateLimited:
		return "rate_limited"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrRunning is returned when starting or reconfiguring a supervisor
	// whose connect loop is active.
	ErrRunning = errors.New("supervisor: already running")

	// ErrConnected is returned by ResetRateLimit while a session is live.
	ErrConnected = errors.New("supervisor: cannot reset while connected")

	// ErrNoStream is returned by Start when no stream id is configured.
	ErrNoStream = errors.New("supervisor: no stream id configured")
)

// CooldownError is returned by Start when the previous attempt was too
// recent. Remaining is how long the caller must wait.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("supervisor: in cooldown, wait %s", e.Remaining.Round(time.Second))
}

// Transition describes one state change.
type Transition struct {
	From, To State

	// Err is the failure that caused the transition, if any.
	Err error

	// Class is the classification of Err.
	Class chat.Class

	// Attempts is the consecutive failure count after the transition.
	Attempts int

	// Cooldown is the cooldown in force after the transition.
	Cooldown time.Duration

	// Final is set when the connect loop gives up with this transition; no
	// retry is scheduled and a new Start is required.
	Final bool
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State       State
	Platform    string
	StreamID    string
	Attempts    int
	MaxAttempts int
	Cooldown    time.Duration

	// Remaining is the time left before a new attempt is allowed. Zero when
	// no cooldown is in force.
	Remaining time.Duration

	// Running reports whether the connect loop is active.
	Running bool

	// LastError is the message of the most recent failure.
	LastError string
}

// Option configures a [Supervisor].
type Option func(*Supervisor)

// WithPolicy overrides the retry policy. Zero fields take their defaults.
func WithPolicy(p RetryPolicy) Option {
	return func(s *Supervisor) { s.policy = p.withDefaults() }
}

// WithCountdownTick sets how often the remaining wait is reported.
func WithCountdownTick(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithClock replaces time.Now for cooldown checks.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithOnTransition registers a callback for every state change. It is called
// without the supervisor lock held.
func WithOnTransition(fn func(Transition)) Option {
	return func(s *Supervisor) { s.onTransition = fn }
}

// WithOnCountdown registers a callback for retry countdown ticks.
func WithOnCountdown(fn func(remaining time.Duration)) Option {
	return func(s *Supervisor) { s.onCountdown = fn }
}

// WithEventBuffer sets the capacity of the forwarded event channel.
func WithEventBuffer(n int) Option {
	return func(s *Supervisor) {
		if n >= 0 {
			s.events = make(chan chat.Event, n)
		}
	}
}

// Supervisor connects a [chat.Source] to one stream and forwards its events.
// All methods are safe for concurrent use.
type Supervisor struct {
	source       chat.Source
	policy       RetryPolicy
	tick         time.Duration
	now          func() time.Time
	metrics      *observe.Metrics
	onTransition func(Transition)
	onCountdown  func(time.Duration)
	events       chan chat.Event

	transientLog rate.Sometimes

	mu          sync.Mutex
	streamID    string
	state       State
	cooldown    time.Duration
	attempts    int
	lastAttempt time.Time
	lastErr     error
	session     chat.Session
	cancel      context.CancelFunc
	loopDone    chan struct{}
}

// New creates a Supervisor for streamID on source.
func New(source chat.Source, streamID string, opts ...Option) *Supervisor {
	s := &Supervisor{
		source:       source,
		policy:       DefaultRetryPolicy(),
		tick:         DefaultCountdownTick,
		now:          time.Now,
		events:       make(chan chat.Event, 64),
		transientLog: rate.Sometimes{First: 1, Every: 12},
		streamID:     streamID,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.cooldown = s.policy.BaseCooldown
	return s
}

// Events returns the channel on which chat events from every session are
// forwarded, in arrival order. The channel is never closed.
func (s *Supervisor) Events() <-chan chat.Event { return s.events }

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:       s.state,
		Platform:    s.source.Name(),
		StreamID:    s.streamID,
		Attempts:    s.attempts,
		MaxAttempts: s.policy.MaxAttempts,
		Cooldown:    s.cooldown,
		Remaining:   s.remainingLocked(),
		Running:     s.runningLocked(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// SetStreamID changes the target stream. Refused while the loop is running.
func (s *Supervisor) SetStreamID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningLocked() {
		return ErrRunning
	}
	s.streamID = id
	return nil
}

// Start launches the connect/retry loop. It returns a [*CooldownError]
// without touching the network when the previous attempt was less than the
// current cooldown ago. ctx bounds the lifetime of the loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.runningLocked() {
		s.mu.Unlock()
		return ErrRunning
	}
	if s.streamID == "" {
		s.mu.Unlock()
		return ErrNoStream
	}
	if remaining := s.remainingLocked(); remaining > 0 {
		s.mu.Unlock()
		return &CooldownError{Remaining: remaining}
	}
	if s.cancel != nil {
		s.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.loopDone = done
	s.mu.Unlock()

	go s.run(loopCtx, done)
	return nil
}

// Stop cancels any countdown or attempt in progress, closes the live
// session and waits for the loop to exit. The state ends as Disconnected.
// Safe to call in any state and more than once.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, done, sess := s.cancel, s.loopDone, s.session
	s.cancel, s.loopDone, s.session = nil, nil, nil
	if cancel != nil {
		cancel()
	}
	s.mu.Unlock()

	var err error
	if sess != nil {
		err = sess.Close()
	}
	if done != nil {
		<-done
	}
	s.transition(StateDisconnected, nil, chat.ClassOther)
	return err
}

// ResetRateLimit restores the base cooldown and clears the failure count.
// Refused with [ErrConnected] while a session is live.
func (s *Supervisor) ResetRateLimit() error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return ErrConnected
	}
	s.cooldown = s.policy.BaseCooldown
	s.attempts = 0
	s.lastAttempt = time.Time{}
	s.lastErr = nil
	idle := !s.runningLocked()
	s.mu.Unlock()

	slog.Info("chat rate limit reset", "cooldown", s.policy.BaseCooldown)
	if idle {
		s.transition(StateDisconnected, nil, chat.ClassOther)
	}
	return nil
}

func (s *Supervisor) runningLocked() bool {
	if s.loopDone == nil {
		return false
	}
	select {
	case <-s.loopDone:
		return false
	default:
		return true
	}
}

func (s *Supervisor) remainingLocked() time.Duration {
	if s.lastAttempt.IsZero() {
		return 0
	}
	if remaining := s.cooldown - s.now().Sub(s.lastAttempt); remaining > 0 {
		return remaining
	}
	return 0
}

// run is the connect/retry loop. One iteration is one attempt followed by
// either a live session or a retry decision.
func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		sess, err := s.attempt(ctx)
		if err == nil {
			err = s.pump(ctx, sess)
			if ctx.Err() != nil {
				_ = sess.Close()
				return
			}
			if err == nil {
				slog.Info("chat session ended", "platform", s.source.Name())
				s.emit(StateDisconnected, nil, chat.ClassOther, done)
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		wait, retry := s.fail(ctx, err, done)
		if !retry {
			return
		}
		if !s.countdown(ctx, wait) {
			return
		}
	}
}

// attempt performs one connection attempt.
func (s *Supervisor) attempt(ctx context.Context) (chat.Session, error) {
	ctx, span := observe.StartSpan(ctx, "supervisor.connect")
	var err error
	defer func() { observe.EndSpan(span, err) }()

	s.mu.Lock()
	s.lastAttempt = s.now()
	streamID := s.streamID
	s.mu.Unlock()
	s.transition(StateConnecting, nil, chat.ClassOther)

	observe.Logger(ctx).Info("connecting to chat", "platform", s.source.Name(), "stream_id", streamID)

	var sess chat.Session
	sess, err = s.source.Connect(ctx, streamID)
	if err != nil {
		err = fmt.Errorf("supervisor: connect %q: %w", streamID, err)
		return nil, err
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = sess.Close()
		err = ctx.Err()
		return nil, err
	}
	s.session = sess
	s.attempts = 0
	s.lastErr = nil
	s.mu.Unlock()

	s.metrics.RecordConnectAttempt(ctx, s.source.Name(), "connected")
	s.transition(StateConnected, nil, chat.ClassOther)
	observe.Logger(ctx).Info("connected to chat", "platform", s.source.Name(), "stream_id", streamID)

	s.forward(ctx, chat.Event{
		Kind:     chat.EventConnected,
		Platform: s.source.Name(),
		UserID:   streamID,
		Received: s.now(),
	})
	return sess, nil
}

// fail applies the retry rules to err and reports whether to retry and how
// long to wait first.
func (s *Supervisor) fail(ctx context.Context, err error, loop chan struct{}) (time.Duration, bool) {
	class := chat.Classify(err)
	s.metrics.RecordConnectAttempt(ctx, s.source.Name(), class.String())

	s.mu.Lock()
	s.lastErr = err
	s.session = nil
	next := StateError
	retry := false
	switch class {
	case chat.ClassRateLimited:
		s.cooldown = s.policy.Next(s.cooldown)
		s.attempts++
		retry = s.policy.ShouldRetry(s.attempts)
		if retry {
			next = StateRateLimited
		}
	case chat.ClassBlocked:
		s.cooldown = s.policy.BlockedCooldown
	case chat.ClassTransient:
		s.attempts++
		retry = s.policy.ShouldRetry(s.attempts)
	}
	wait := s.cooldown
	attempts := s.attempts
	s.mu.Unlock()

	log := observe.Logger(ctx).With(
		"platform", s.source.Name(),
		"class", class.String(),
		"attempts", attempts,
		"max_attempts", s.policy.MaxAttempts,
		"cooldown", wait,
		"err", err,
	)
	switch class {
	case chat.ClassTransient:
		s.transientLog.Do(func() { log.Warn("chat connection failed with network error") })
	case chat.ClassRateLimited:
		log.Warn("chat connection rate limited")
	default:
		log.Error("chat connection failed")
	}
	if !retry && (class == chat.ClassRateLimited || class == chat.ClassTransient) {
		log.Error("giving up on chat connection after max attempts")
	}

	if retry {
		loop = nil
	}
	s.emit(next, err, class, loop)
	return wait, retry
}

// pump forwards session events until the session ends or ctx is cancelled.
// It returns the session's terminal error.
func (s *Supervisor) pump(ctx context.Context, sess chat.Session) error {
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sess.Events():
			s.forward(ctx, ev)
		case <-sess.Done():
			s.drain(ctx, sess)
			s.mu.Lock()
			if s.session == sess {
				s.session = nil
			}
			s.mu.Unlock()
			return sess.Err()
		}
	}
}

// drain forwards events still buffered in an ended session.
func (s *Supervisor) drain(ctx context.Context, sess chat.Session) {
	for {
		select {
		case ev := <-sess.Events():
			s.forward(ctx, ev)
		default:
			return
		}
	}
}

func (s *Supervisor) forward(ctx context.Context, ev chat.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// countdown waits for d, reporting the remaining time every tick. It
// returns false when ctx is cancelled first.
func (s *Supervisor) countdown(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	s.reportCountdown(d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
			if remaining := time.Until(deadline); remaining > 0 {
				s.reportCountdown(remaining)
			}
		}
	}
}

func (s *Supervisor) reportCountdown(remaining time.Duration) {
	slog.Debug("retrying chat connection", "in", remaining.Round(time.Second))
	if s.onCountdown != nil {
		s.onCountdown(remaining)
	}
}

// transition moves to state to and notifies the observer. A change to the
// current state is not reported.
func (s *Supervisor) transition(to State, err error, class chat.Class) {
	s.emit(to, err, class, nil)
}

// emit is transition with an optional owning loop. A non-nil loop that
// still owns the slot marks the transition Final and frees the slot.
func (s *Supervisor) emit(to State, err error, class chat.Class, loop chan struct{}) {
	s.mu.Lock()
	// Only the loop that owns the slot can end it.
	final := loop != nil && s.loopDone == loop
	from := s.state
	if from == to && err == nil {
		s.mu.Unlock()
		return
	}
	s.state = to
	t := Transition{
		From:     from,
		To:       to,
		Err:      err,
		Class:    class,
		Attempts: s.attempts,
		Cooldown: s.cooldown,
		Final:    final,
	}
	if final {
		// The loop is returning; a Start from the callback may launch a new one.
		if s.cancel != nil {
			s.cancel()
		}
		s.cancel, s.loopDone = nil, nil
	}
	s.mu.Unlock()

	if s.onTransition != nil {
		s.onTransition(t)
	}
}
