// Package chat defines the platform-neutral chat event model and the
// interfaces a livestream chat source must implement.
//
// A [Source] establishes a [Session] for one stream. The session delivers
// [Event] values on a channel in arrival order and reports how it ended through
// [Session.Err]. Adapter packages (twitch, wsbridge, discord) translate their
// platform callbacks into events; consumers never see platform types.
package chat

import (
	"context"
	"sync"
	"time"
)

// EventKind discriminates the [Event] union.
type EventKind int

const (
	// EventConnected is emitted once when the session is established.
	EventConnected EventKind = iota

	// EventUserJoined is emitted when a viewer joins the stream.
	EventUserJoined

	// EventComment is emitted for every chat message.
	EventComment
)

// String returns the lower-case name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventUserJoined:
		return "join"
	case EventComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Event is one inbound chat event. Values are immutable once emitted.
type Event struct {
	Kind EventKind

	// Platform names the source that produced the event (e.g. "twitch").
	Platform string

	// UserID is the platform's stable identifier for the author or joiner.
	UserID string

	// Username is the display name. May be empty, in which case UserID is used.
	Username string

	// Text is the comment body. Empty for non-comment events.
	Text string

	// Received is when the adapter observed the event.
	Received time.Time
}

// DisplayName returns Username, falling back to UserID.
func (e Event) DisplayName() string {
	if e.Username != "" {
		return e.Username
	}
	return e.UserID
}

// Source connects to a livestream chat.
//
// Implementations must be safe for concurrent use, although the supervisor
// only ever holds one session at a time.
type Source interface {
	// Name returns the platform name reported in events and logs.
	Name() string

	// Connect establishes a session for streamID. It returns once the
	// session is live or has failed. Errors should wrap one of the
	// classification sentinels ([ErrNotFound], [ErrRateLimited],
	// [ErrBlocked], [ErrTransient]) when the platform makes the cause clear.
	Connect(ctx context.Context, streamID string) (Session, error)
}

// Session is a live connection to one stream's chat.
type Session interface {
	// Events returns the channel on which events are delivered. The channel
	// is never closed; select on Done to detect the end of the session.
	Events() <-chan Event

	// Done is closed when the session has ended for any reason.
	Done() <-chan struct{}

	// Err returns the reason the session ended, or nil for a clean close.
	// Only meaningful after Done is closed.
	Err() error

	// Close ends the session. Safe to call more than once.
	Close() error
}

// Pipe is a channel-backed [Session] that adapters embed or return. The
// adapter pushes events with [Pipe.Emit] and ends the session with
// [Pipe.Finish].
type Pipe struct {
	events  chan Event
	done    chan struct{}
	once    sync.Once
	closeFn func() error

	mu  sync.Mutex
	err error
}

var _ Session = (*Pipe)(nil)

// NewPipe creates a Pipe with the given event buffer. closeFn, if non-nil,
// is called once by [Pipe.Close] to release the platform connection.
func NewPipe(buffer int, closeFn func() error) *Pipe {
	if buffer < 0 {
		buffer = 0
	}
	return &Pipe{
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

// Emit delivers ev, blocking while the buffer is full. It returns false if
// the session has already ended and the event was dropped.
func (p *Pipe) Emit(ev Event) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

// Finish ends the session with err. Only the first call has effect.
func (p *Pipe) Finish(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

// Events implements [Session].
func (p *Pipe) Events() <-chan Event { return p.events }

// Done implements [Session].
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Err implements [Session].
func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close implements [Session]. It calls the adapter's close function and
// finishes the session cleanly.
func (p *Pipe) Close() error {
	var err error
	select {
	case <-p.done:
		return nil
	default:
	}
	if p.closeFn != nil {
		err = p.closeFn()
	}
	p.Finish(nil)
	return err
}
