package stats

import (
	"fmt"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the statistics.
type Snapshot struct {
	Running          bool          `json:"running"`
	Messages         int64         `json:"messages"`
	Jokes            int64         `json:"jokes"`
	Welcomes         int64         `json:"welcomes"`
	ConnectionChecks int64         `json:"connection_checks"`
	StartTime        time.Time     `json:"start_time,omitzero"`
	LastActivity     time.Time     `json:"last_activity,omitzero"`
	Uptime           time.Duration `json:"uptime"`
	StreamStatus     string        `json:"stream_status"`
	Connection       string        `json:"connection"`
	Countdown        time.Duration `json:"countdown"`
	Voice            string        `json:"voice"`
	UniqueUsers      int           `json:"unique_users"`
	JoinEvents       int           `json:"join_events"`
}

// Stats holds the running counters. The zero value is not usable; call
// [New].
type Stats struct {
	mu     sync.Mutex
	now    func() time.Time
	roster *Roster
	snap   Snapshot
}

// New returns empty statistics with its own [Roster].
func New(now func() time.Time) *Stats {
	if now == nil {
		now = time.Now
	}
	return &Stats{
		now:    now,
		roster: NewRoster(now),
		snap:   Snapshot{StreamStatus: "unknown", Connection: "disconnected"},
	}
}

// Roster returns the joined-users roster.
func (s *Stats) Roster() *Roster { return s.roster }

// Start marks the bot as running and stamps the start time.
func (s *Stats) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = true
	s.snap.StartTime = s.now()
}

// Stop marks the bot as stopped. Counters are kept.
func (s *Stats) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = false
	s.snap.Countdown = 0
}

// AddMessage counts a processed chat message and records the activity time.
func (s *Stats) AddMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Messages++
	s.snap.LastActivity = s.now()
}

// AddJoke counts a told joke.
func (s *Stats) AddJoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Jokes++
}

// AddWelcome counts a welcomed user.
func (s *Stats) AddWelcome() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Welcomes++
}

// AddConnectionCheck counts one live-status probe and returns the new total.
func (s *Stats) AddConnectionCheck() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ConnectionChecks++
	return s.snap.ConnectionChecks
}

// SetStreamStatus records the latest live status.
func (s *Stats) SetStreamStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.StreamStatus = status
}

// SetConnection records the connection state and remaining retry wait.
func (s *Stats) SetConnection(state string, countdown time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Connection = state
	s.snap.Countdown = countdown
}

// SetVoice records the active voice name.
func (s *Stats) SetVoice(voice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Voice = voice
}

// Snapshot returns a copy of the statistics with Uptime computed.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	snap := s.snap
	now := s.now()
	s.mu.Unlock()

	if snap.Running && !snap.StartTime.IsZero() {
		snap.Uptime = now.Sub(snap.StartTime).Truncate(time.Second)
	}
	snap.UniqueUsers, snap.JoinEvents = s.roster.Counts()
	return snap
}

// FormatUptime renders d as HH:MM:SS.
func FormatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	sec := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
