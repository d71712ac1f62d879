package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/streamtts/internal/stats"
)

type entryMsg stats.Entry

type snapshotMsg stats.Snapshot

// Sink forwards log entries and snapshots to the panel. Messages that do
// not fit the buffer are dropped; the panel refreshes statistics on its
// own tick.
type Sink struct {
	msgs chan tea.Msg
}

var _ stats.Sink = (*Sink)(nil)

// NewSink returns a Sink buffering up to n messages. n <= 0 means 256.
func NewSink(n int) *Sink {
	if n <= 0 {
		n = 256
	}
	return &Sink{msgs: make(chan tea.Msg, n)}
}

// Log implements [stats.Sink].
func (s *Sink) Log(e stats.Entry) { s.send(entryMsg(e)) }

// Update implements [stats.Sink].
func (s *Sink) Update(snap stats.Snapshot) { s.send(snapshotMsg(snap)) }

func (s *Sink) send(msg tea.Msg) {
	select {
	case s.msgs <- msg:
	default:
	}
}

// next waits for the next message.
func (s *Sink) next() tea.Cmd {
	return func() tea.Msg { return <-s.msgs }
}
