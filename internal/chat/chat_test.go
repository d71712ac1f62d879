package chat_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/MrWong99/streamtts/internal/chat"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want chat.Class
	}{
		{"nil", nil, chat.ClassOther},
		{"wrapped not found", fmt.Errorf("twitch: join: %w", chat.ErrNotFound), chat.ClassNotFound},
		{"wrapped rate", fmt.Errorf("x: %w", chat.ErrRateLimited), chat.ClassRateLimited},
		{"wrapped blocked", fmt.Errorf("x: %w", chat.ErrBlocked), chat.ClassBlocked},
		{"wrapped transient", fmt.Errorf("x: %w", chat.ErrTransient), chat.ClassTransient},
		{"user not found text", errors.New("User not found: @someone"), chat.ClassNotFound},
		{"cannot broadcast text", errors.New("This account is not capable of going LIVE"), chat.ClassNotFound},
		{"no message provided", errors.New("No Message Provided"), chat.ClassRateLimited},
		{"too many requests", errors.New("HTTP 429 Too Many Requests"), chat.ClassRateLimited},
		{"rate limit text", errors.New("Rate limit exceeded"), chat.ClassRateLimited},
		{"blocked text", errors.New("your device has been blocked"), chat.ClassBlocked},
		{"connection refused", errors.New("dial tcp: connection refused"), chat.ClassTransient},
		{"deadline", context.DeadlineExceeded, chat.ClassTransient},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, chat.ClassTransient},
		{"generic", errors.New("something odd"), chat.ClassOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chat.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestEvent_DisplayName(t *testing.T) {
	t.Parallel()
	if got := (chat.Event{UserID: "u1", Username: "Alice"}).DisplayName(); got != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", got)
	}
	if got := (chat.Event{UserID: "u1"}).DisplayName(); got != "u1" {
		t.Errorf("DisplayName fallback = %q, want u1", got)
	}
}

func TestPipe_EmitAndFinish(t *testing.T) {
	t.Parallel()
	p := chat.NewPipe(2, nil)

	if !p.Emit(chat.Event{Kind: chat.EventComment, Text: "hi"}) {
		t.Fatal("Emit on live pipe returned false")
	}
	ev := <-p.Events()
	if ev.Text != "hi" {
		t.Errorf("event text = %q, want hi", ev.Text)
	}

	cause := errors.New("dropped")
	p.Finish(cause)
	p.Finish(nil) // ignored

	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after Finish")
	}
	if !errors.Is(p.Err(), cause) {
		t.Errorf("Err = %v, want %v", p.Err(), cause)
	}
	if p.Emit(chat.Event{}) {
		t.Error("Emit after Finish returned true")
	}
}

func TestPipe_EmitUnblocksOnFinish(t *testing.T) {
	t.Parallel()
	p := chat.NewPipe(0, nil)

	result := make(chan bool, 1)
	go func() { result <- p.Emit(chat.Event{}) }()

	time.Sleep(20 * time.Millisecond)
	p.Finish(nil)

	select {
	case ok := <-result:
		if ok {
			t.Error("blocked Emit returned true after Finish")
		}
	case <-time.After(time.Second):
		t.Fatal("Emit still blocked after Finish")
	}
}

func TestPipe_CloseCallsCloseFnOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	p := chat.NewPipe(1, func() error {
		calls++
		return nil
	})
	_ = p.Close()
	_ = p.Close()
	if calls != 1 {
		t.Errorf("closeFn called %d times, want 1", calls)
	}
	if p.Err() != nil {
		t.Errorf("Err after Close = %v, want nil", p.Err())
	}
}
