// Package stats collects the bot's operator-facing statistics and fans log
// lines and snapshots out to whatever is watching: the terminal panel, the
// HTTP API, or plain slog output.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level classifies a log entry for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelTTS     Level = "tts"
	LevelWelcome Level = "welcome"
)

// slogLevel maps display levels onto slog levels.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Entry is one operator-facing log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Sink receives log entries and statistic snapshots.
//
// Implementations must be safe for concurrent use and must not block for
// long; they are called from the dispatch loop and speech workers.
type Sink interface {
	Log(e Entry)
	Update(s Snapshot)
}

// LogSink writes entries to a slog.Logger and ignores snapshots.
type LogSink struct {
	Logger *slog.Logger
}

var _ Sink = LogSink{}

// Log implements [Sink].
func (s LogSink) Log(e Entry) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Log(context.Background(), e.Level.slogLevel(), e.Message, "kind", string(e.Level))
}

// Update implements [Sink].
func (LogSink) Update(Snapshot) {}

// Fanout delivers to every sink in order.
type Fanout []Sink

var _ Sink = Fanout(nil)

// Log implements [Sink].
func (f Fanout) Log(e Entry) {
	for _, s := range f {
		s.Log(e)
	}
}

// Update implements [Sink].
func (f Fanout) Update(snap Snapshot) {
	for _, s := range f {
		s.Update(snap)
	}
}

// Recorder keeps the most recent entries and the latest snapshot in memory.
// The HTTP API reads from it.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
	last    Snapshot
	updates int
}

var _ Sink = (*Recorder)(nil)

// NewRecorder returns a Recorder retaining up to limit entries.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 200
	}
	return &Recorder{limit: limit}
}

// Log implements [Sink].
func (r *Recorder) Log(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if over := len(r.entries) - r.limit; over > 0 {
		r.entries = append(r.entries[:0], r.entries[over:]...)
	}
}

// Update implements [Sink].
func (r *Recorder) Update(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = s
	r.updates++
}

// Entries returns a copy of the retained entries, oldest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Last returns the most recent snapshot and how many were received.
func (r *Recorder) Last() (Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.updates
}
