package twitch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/streamtts/internal/chat"
)

// fakeIRC is a minimal plain-text IRC server. It welcomes the client after
// NICK and, after JOIN, sends script.
type fakeIRC struct {
	ln       net.Listener
	onNick   []string
	script   []string
	mu       sync.Mutex
	received []string
}

func newFakeIRC(t *testing.T, onNick, script []string) *fakeIRC {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeIRC{ln: ln, onNick: onNick, script: script}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeIRC) addr() string { return f.ln.Addr().String() }

func (f *fakeIRC) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeIRC) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		f.mu.Lock()
		f.received = append(f.received, line)
		f.mu.Unlock()

		switch {
		case strings.HasPrefix(line, "NICK"):
			for _, l := range f.onNick {
				fmt.Fprintf(conn, "%s\r\n", l)
			}
		case strings.HasPrefix(line, "JOIN"):
			for _, l := range f.script {
				fmt.Fprintf(conn, "%s\r\n", l)
			}
		case strings.HasPrefix(line, "PING"):
			fmt.Fprintf(conn, "PONG%s\r\n", strings.TrimPrefix(line, "PING"))
		}
	}
}

func (f *fakeIRC) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

const welcome = ":tmi.twitch.tv 001 justinfan123123 :Welcome, GLHF!"

func next(t *testing.T, sess chat.Session) chat.Event {
	t.Helper()
	select {
	case ev := <-sess.Events():
		return ev
	case <-sess.Done():
		t.Fatalf("session ended: %v", sess.Err())
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return chat.Event{}
}

func TestConnect_DeliversEvents(t *testing.T) {
	srv := newFakeIRC(t, []string{welcome}, []string{
		":justinfan123123!justinfan123123@justinfan123123.tmi.twitch.tv JOIN #streamer",
		":bob!bob@bob.tmi.twitch.tv JOIN #streamer",
		"@badge-info=;badges=;color=#FF0000;display-name=Alice;emotes=;id=m1;mod=0;room-id=99;subscriber=0;tmi-sent-ts=1700000000000;turbo=0;user-id=42;user-type= :alice!alice@alice.tmi.twitch.tv PRIVMSG #streamer :hello chat",
	})

	src := New(WithServer(srv.addr(), false))
	sess, err := src.Connect(context.Background(), "@Streamer")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if ev := next(t, sess); ev.Kind != chat.EventConnected || ev.UserID != "streamer" {
		t.Errorf("first event = %+v, want connected for streamer", ev)
	}
	join := next(t, sess)
	if join.Kind != chat.EventUserJoined || join.Username != "bob" {
		t.Errorf("join = %+v, want bob (own join skipped)", join)
	}
	msg := next(t, sess)
	if msg.Kind != chat.EventComment || msg.UserID != "42" || msg.Username != "Alice" || msg.Text != "hello chat" {
		t.Errorf("comment = %+v", msg)
	}
	if msg.Platform != Platform {
		t.Errorf("platform = %q", msg.Platform)
	}

	joined := false
	for _, l := range srv.lines() {
		if l == "JOIN #streamer" {
			joined = true
		}
	}
	if !joined {
		t.Errorf("client never joined #streamer: %q", srv.lines())
	}
}

func TestConnect_CloseEndsSessionCleanly(t *testing.T) {
	srv := newFakeIRC(t, []string{welcome}, nil)
	sess, err := New(WithServer(srv.addr(), false)).Connect(context.Background(), "streamer")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session not done after Close")
	}
	if err := sess.Err(); err != nil {
		t.Errorf("Err after Close = %v, want nil", err)
	}
}

func TestConnect_LoginFailureIsBlocked(t *testing.T) {
	srv := newFakeIRC(t, []string{":tmi.twitch.tv NOTICE * :Login authentication failed"}, nil)
	_, err := New(WithServer(srv.addr(), false), WithCredentials("bot", "oauth:bad")).Connect(context.Background(), "streamer")
	if !errors.Is(err, chat.ErrBlocked) {
		t.Fatalf("Connect error = %v, want ErrBlocked", err)
	}
}

func TestConnect_NoWelcomeTimesOut(t *testing.T) {
	srv := newFakeIRC(t, nil, nil)
	_, err := New(WithServer(srv.addr(), false), WithConnectTimeout(100*time.Millisecond)).Connect(context.Background(), "streamer")
	if chat.Classify(err) != chat.ClassTransient {
		t.Fatalf("Connect error = %v, want transient", err)
	}
}

func TestConnect_EmptyChannel(t *testing.T) {
	t.Parallel()
	if _, err := New().Connect(context.Background(), " @ "); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestNoticeError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id, text string
		want     error
	}{
		{"msg_channel_suspended", "This channel has been suspended.", chat.ErrNotFound},
		{"msg_banned", "You are permanently banned", chat.ErrBlocked},
		{"msg_ratelimit", "slow down", chat.ErrRateLimited},
		{"", "Login authentication failed", chat.ErrBlocked},
		{"host_on", "Now hosting", nil},
	}
	for _, tt := range tests {
		err := noticeError(tt.id, tt.text)
		if tt.want == nil {
			if err != nil {
				t.Errorf("noticeError(%q) = %v, want nil", tt.id, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("noticeError(%q) = %v, want %v", tt.id, err, tt.want)
		}
	}
}
