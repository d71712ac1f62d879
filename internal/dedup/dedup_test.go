package dedup_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/streamtts/internal/dedup"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestKeys(t *testing.T) {
	t.Parallel()
	if got := dedup.WelcomeKey("alice"); got != "welcome:alice" {
		t.Errorf("WelcomeKey = %q, want %q", got, "welcome:alice")
	}
	if got := dedup.CommentKey("alice", "hi there"); got != "alice:hi there" {
		t.Errorf("CommentKey = %q, want %q", got, "alice:hi there")
	}
	if got := dedup.CommentKey("alice", "  hi there \n"); got != "alice:hi there" {
		t.Errorf("CommentKey with padding = %q, want %q", got, "alice:hi there")
	}
}

func TestShouldSpeak_IgnoresSurroundingWhitespace(t *testing.T) {
	t.Parallel()
	c := dedup.New()
	if !c.ShouldSpeak(dedup.CommentKey("u1", "hello")) {
		t.Fatal("first comment suppressed")
	}
	if c.ShouldSpeak(dedup.CommentKey("u1", "hello ")) {
		t.Error("comment differing only by trailing space was not suppressed")
	}
}

func TestForget(t *testing.T) {
	t.Parallel()
	c := dedup.New()
	key := dedup.WelcomeKey("erin")
	c.ShouldSpeak(key)
	c.Forget(key)
	if !c.ShouldSpeak(key) {
		t.Error("ShouldSpeak after Forget = false, want true")
	}
	if c.ShouldSpeak(key) {
		t.Error("second ShouldSpeak after Forget = true, want false")
	}
	c.Forget("never-seen")
}

func TestShouldSpeak_OnlyFirstWithinWindow(t *testing.T) {
	t.Parallel()
	clk := newClock()
	c := dedup.New(dedup.WithClock(clk.Now))

	key := dedup.CommentKey("bob", "hello")
	if !c.ShouldSpeak(key) {
		t.Fatal("first ShouldSpeak = false, want true")
	}
	for i := range 5 {
		clk.Advance(30 * time.Second)
		if c.ShouldSpeak(key) {
			t.Fatalf("repeat %d within window returned true", i)
		}
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestShouldSpeak_DistinctKeys(t *testing.T) {
	t.Parallel()
	c := dedup.New()
	if !c.ShouldSpeak(dedup.CommentKey("bob", "hello")) {
		t.Error("bob:hello should be new")
	}
	if !c.ShouldSpeak(dedup.CommentKey("carol", "hello")) {
		t.Error("carol:hello should be new")
	}
	if !c.ShouldSpeak(dedup.WelcomeKey("bob")) {
		t.Error("welcome:bob should be new")
	}
}

func TestShouldSpeak_RepeatAfterWindow(t *testing.T) {
	t.Parallel()
	clk := newClock()
	c := dedup.New(dedup.WithClock(clk.Now))

	key := dedup.CommentKey("dave", "same again")
	if !c.ShouldSpeak(key) {
		t.Fatal("first ShouldSpeak = false")
	}

	// Exactly at the boundary the window is still active.
	clk.Advance(300 * time.Second)
	if c.ShouldSpeak(key) {
		t.Fatal("ShouldSpeak at exactly 300s = true, want false")
	}

	clk.Advance(time.Second)
	if !c.ShouldSpeak(key) {
		t.Fatal("ShouldSpeak after 301s = false, want true")
	}
}

func TestMaybeReset_ClearsEverything(t *testing.T) {
	t.Parallel()
	clk := newClock()
	c := dedup.New(dedup.WithClock(clk.Now), dedup.WithResetInterval(10*time.Second))

	c.ShouldSpeak("a")
	c.ShouldSpeak("b")
	c.ShouldSpeak("c")

	if c.MaybeReset(clk.Now().Add(5 * time.Second)) {
		t.Fatal("MaybeReset inside window reported a reset")
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if !c.MaybeReset(clk.Now().Add(11 * time.Second)) {
		t.Fatal("MaybeReset after window did not reset")
	}
	if c.Len() != 0 {
		t.Errorf("Len after reset = %d, want 0", c.Len())
	}
}

func TestSetResetInterval(t *testing.T) {
	t.Parallel()
	clk := newClock()
	c := dedup.New(dedup.WithClock(clk.Now))
	c.ShouldSpeak("x")

	c.SetResetInterval(time.Second)
	c.SetResetInterval(-time.Second) // ignored
	clk.Advance(2 * time.Second)
	if !c.ShouldSpeak("x") {
		t.Error("expected key to be new after shortened window elapsed")
	}
}

func TestShouldSpeak_Concurrent(t *testing.T) {
	t.Parallel()
	c := dedup.New()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.ShouldSpeak("race") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("ShouldSpeak returned true %d times, want 1", wins)
	}
}
