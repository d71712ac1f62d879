package discord

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/streamtts/internal/chat"
)

type fakeGateway struct {
	mu       sync.Mutex
	handlers []any
	openErr  error
	chanErr  error
	channel  *discordgo.Channel
	closed   int
}

func (g *fakeGateway) AddHandler(h any) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, h)
	return func() {}
}

func (g *fakeGateway) Open() error { return g.openErr }

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed++
	return nil
}

func (g *fakeGateway) Channel(id string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if g.chanErr != nil {
		return nil, g.chanErr
	}
	return g.channel, nil
}

// dispatch calls every registered handler that accepts ev.
func (g *fakeGateway) dispatch(ev any) {
	g.mu.Lock()
	hs := append([]any(nil), g.handlers...)
	g.mu.Unlock()
	for _, h := range hs {
		switch fn := h.(type) {
		case func(*discordgo.Session, *discordgo.MessageCreate):
			if m, ok := ev.(*discordgo.MessageCreate); ok {
				fn(nil, m)
			}
		case func(*discordgo.Session, *discordgo.GuildMemberAdd):
			if m, ok := ev.(*discordgo.GuildMemberAdd); ok {
				fn(nil, m)
			}
		}
	}
}

func newTestSource(t *testing.T, g *fakeGateway, opts ...Option) *Source {
	t.Helper()
	s, err := New("Bot secret", opts...)
	if err != nil {
		t.Fatal(err)
	}
	s.newSession = func(token string) (gateway, error) {
		if token != "secret" {
			t.Errorf("token = %q, want prefix stripped", token)
		}
		return g, nil
	}
	return s
}

func recv(t *testing.T, sess chat.Session) chat.Event {
	t.Helper()
	select {
	case ev := <-sess.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return chat.Event{}
}

func message(channel, content string, author *discordgo.User) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{ChannelID: channel, Content: content, Author: author}}
}

func TestConnect_TranslatesEvents(t *testing.T) {
	t.Parallel()
	g := &fakeGateway{channel: &discordgo.Channel{ID: "c1", GuildID: "g1", Name: "stream-chat"}}
	sess, err := newTestSource(t, g).Connect(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if ev := recv(t, sess); ev.Kind != chat.EventConnected || ev.UserID != "c1" {
		t.Errorf("connected = %+v", ev)
	}

	g.dispatch(message("other", "ignored", &discordgo.User{ID: "u0", Username: "x"}))
	g.dispatch(message("c1", "beep", &discordgo.User{ID: "b1", Username: "robot", Bot: true}))
	g.dispatch(message("c1", "   ", &discordgo.User{ID: "u1", Username: "alice"}))
	g.dispatch(message("c1", "hello", &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"}))
	g.dispatch(&discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g2", User: &discordgo.User{ID: "u8"}}})
	g.dispatch(&discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", Nick: "Bobby", User: &discordgo.User{ID: "u2", Username: "bob"}}})

	ev := recv(t, sess)
	if ev.Kind != chat.EventComment || ev.UserID != "u1" || ev.Username != "Alice" || ev.Text != "hello" {
		t.Errorf("comment = %+v", ev)
	}
	ev = recv(t, sess)
	if ev.Kind != chat.EventUserJoined || ev.UserID != "u2" || ev.Username != "Bobby" {
		t.Errorf("join = %+v", ev)
	}

	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed != 1 {
		t.Errorf("gateway closed %d times, want 1", g.closed)
	}
}

func TestConnect_IncludeBots(t *testing.T) {
	t.Parallel()
	g := &fakeGateway{channel: &discordgo.Channel{ID: "c1"}}
	sess, err := newTestSource(t, g, WithIncludeBots(true)).Connect(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	recv(t, sess)

	g.dispatch(message("c1", "beep", &discordgo.User{ID: "b1", Username: "robot", Bot: true}))
	if ev := recv(t, sess); ev.Username != "robot" {
		t.Errorf("event = %+v, want bot message", ev)
	}
}

func TestConnect_ChannelErrors(t *testing.T) {
	t.Parallel()
	tests := map[int]error{
		http.StatusNotFound:        chat.ErrNotFound,
		http.StatusTooManyRequests: chat.ErrRateLimited,
		http.StatusForbidden:       chat.ErrBlocked,
	}
	for code, want := range tests {
		g := &fakeGateway{chanErr: &discordgo.RESTError{Response: &http.Response{StatusCode: code}}}
		_, err := newTestSource(t, g).Connect(context.Background(), "c1")
		if !errors.Is(err, want) {
			t.Errorf("status %d: error = %v, want %v", code, err, want)
		}
		if g.closed != 1 {
			t.Errorf("status %d: gateway not closed after failure", code)
		}
	}
}

func TestConnect_OpenError(t *testing.T) {
	t.Parallel()
	g := &fakeGateway{openErr: errors.New("websocket: bad handshake")}
	_, err := newTestSource(t, g).Connect(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_RequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New("  "); err == nil {
		t.Error("expected error for empty token")
	}
}
