package stats

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxJoinHistory is how many join events the roster keeps.
const MaxJoinHistory = 100

// ErrNoUsers is returned by Export when nobody has joined yet.
var ErrNoUsers = errors.New("stats: no users to export")

// Join is one recorded join event.
type Join struct {
	Username string    `json:"username"`
	Time     time.Time `json:"time"`
}

// Roster tracks who joined the stream: a most-recent-first history capped
// at [MaxJoinHistory] and the set of every distinct username seen.
type Roster struct {
	mu      sync.Mutex
	now     func() time.Time
	history []Join
	unique  map[string]struct{}
}

// NewRoster returns an empty roster.
func NewRoster(now func() time.Time) *Roster {
	if now == nil {
		now = time.Now
	}
	return &Roster{now: now, unique: make(map[string]struct{})}
}

// Add records a join for username.
func (r *Roster) Add(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append([]Join{{Username: username, Time: r.now()}}, r.history...)
	if len(r.history) > MaxJoinHistory {
		r.history = r.history[:MaxJoinHistory]
	}
	r.unique[username] = struct{}{}
}

// Clear forgets everything.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
	r.unique = make(map[string]struct{})
}

// Counts returns the number of distinct users and retained join events.
func (r *Roster) Counts() (unique, joins int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.unique), len(r.history)
}

// History returns the retained joins, most recent first.
func (r *Roster) History() []Join {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Join(nil), r.history...)
}

// Unique returns every distinct username, sorted.
func (r *Roster) Unique() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedUniqueLocked()
}

func (r *Roster) sortedUniqueLocked() []string {
	names := make([]string, 0, len(r.unique))
	for n := range r.unique {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Export writes the roster to users_joined_YYYYMMDD_HHMMSS.txt in dir and
// returns the file path.
func (r *Roster) Export(dir, title string) (string, error) {
	r.mu.Lock()
	if len(r.history) == 0 {
		r.mu.Unlock()
		return "", ErrNoUsers
	}
	now := r.now()
	history := append([]Join(nil), r.history...)
	unique := r.sortedUniqueLocked()
	r.mu.Unlock()

	if title == "" {
		title = "Stream Users"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s - %s\n", title, now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "# Total Unique Users: %d\n", len(unique))
	fmt.Fprintf(&b, "# Total Join Events: %d\n\n", len(history))
	b.WriteString("Join History (Most Recent First):\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for _, j := range history {
		fmt.Fprintf(&b, "[%s] %s\n", j.Time.Format("15:04:05"), j.Username)
	}
	b.WriteString("\n" + strings.Repeat("-", 40) + "\n")
	b.WriteString("Unique Users List:\n")
	for _, n := range unique {
		fmt.Fprintf(&b, "• %s\n", n)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("stats: export: %w", err)
	}
	path := filepath.Join(dir, "users_joined_"+now.Format("20060102_150405")+".txt")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("stats: export: %w", err)
	}
	return path, nil
}
