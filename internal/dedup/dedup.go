// Package dedup provides the time-windowed seen-key cache that decides whether
// a chat event should be spoken.
//
// The cache is reset coarsely: once the active window is older than the reset
// interval, every key is dropped at once. There is no per-key TTL, so a key is
// remembered for at most one window.
package dedup

import (
	"strings"
	"sync"
	"time"
)

// DefaultResetInterval is the window length used when none is configured.
const DefaultResetInterval = 300 * time.Second

// WelcomeKey returns the key used to deduplicate join events for userID.
func WelcomeKey(userID string) string {
	return "welcome:" + userID
}

// CommentKey returns the key used to deduplicate a comment by userID.
// Surrounding whitespace in text is ignored.
func CommentKey(userID, text string) string {
	return userID + ":" + strings.TrimSpace(text)
}

// Option configures a [Cache].
type Option func(*Cache)

// WithResetInterval sets the window length. Non-positive values are ignored.
func WithResetInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is a set of seen keys plus the start of the active window.
// It is safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	windowStart time.Time
	interval    time.Duration
	now         func() time.Time
}

// New returns an empty [Cache] whose first window starts now.
func New(opts ...Option) *Cache {
	c := &Cache{
		seen:     make(map[string]struct{}),
		interval: DefaultResetInterval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.windowStart = c.now()
	return c
}

// ShouldSpeak reports whether key is new in the active window and records it.
// The window is checked for expiry before the lookup.
func (c *Cache) ShouldSpeak(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeResetLocked(c.now())
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

// Forget removes key from the active window, so the next ShouldSpeak for it
// reports true again.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	delete(c.seen, key)
	c.mu.Unlock()
}

// MaybeReset clears all keys if the window that started at the last reset is
// older than the reset interval at now. It reports whether a reset happened.
func (c *Cache) MaybeReset(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maybeResetLocked(now)
}

func (c *Cache) maybeResetLocked(now time.Time) bool {
	if now.Sub(c.windowStart) <= c.interval {
		return false
	}
	clear(c.seen)
	c.windowStart = now
	return true
}

// SetResetInterval changes the window length for subsequent checks.
func (c *Cache) SetResetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()
}

// Len returns the number of keys in the active window.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
