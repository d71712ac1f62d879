package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/streamtts/internal/chat"
)

// relay accepts one websocket connection per request and writes frames.
type relay struct {
	mu     sync.Mutex
	paths  []string
	frames []string
	// hold keeps the connection open after the frames until the client closes.
	hold bool
}

func (r *relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.paths = append(r.paths, req.URL.RequestURI())
	frames := append([]string(nil), r.frames...)
	hold := r.hold
	r.mu.Unlock()

	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := req.Context()
	for _, f := range frames {
		if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
			return
		}
	}
	if hold {
		_, _, _ = conn.Read(ctx)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func frame(t *testing.T, f Frame) string {
	t.Helper()
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func next(t *testing.T, sess chat.Session) chat.Event {
	t.Helper()
	select {
	case ev := <-sess.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return chat.Event{}
}

func TestConnect_TranslatesFrames(t *testing.T) {
	t.Parallel()
	r := &relay{hold: true}
	r.frames = []string{
		frame(t, Frame{Type: FrameConnected}),
		frame(t, Frame{Type: FrameJoin, UserID: "7", Username: "bob"}),
		`{not json`,
		frame(t, Frame{Type: "like", UserID: "7"}),
		frame(t, Frame{Type: FrameComment, UserID: "8", Username: "alice", Text: "hi there"}),
	}
	srv := httptest.NewServer(r)
	defer srv.Close()

	src, err := New(srv.URL+"/live/%s", WithPlatform("tiktok"))
	if err != nil {
		t.Fatal(err)
	}
	sess, err := src.Connect(context.Background(), "@some user")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if ev := next(t, sess); ev.Kind != chat.EventConnected || ev.UserID != "some user" {
		t.Errorf("connected = %+v", ev)
	}
	if ev := next(t, sess); ev.Kind != chat.EventUserJoined || ev.UserID != "7" || ev.Username != "bob" {
		t.Errorf("join = %+v", ev)
	}
	ev := next(t, sess)
	if ev.Kind != chat.EventComment || ev.Text != "hi there" || ev.Platform != "tiktok" {
		t.Errorf("comment = %+v", ev)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) != 1 || r.paths[0] != "/live/some%20user" {
		t.Errorf("paths = %q", r.paths)
	}
}

func TestConnect_StreamQueryParameter(t *testing.T) {
	t.Parallel()
	r := &relay{hold: true, frames: []string{frame(t, Frame{Type: FrameConnected})}}
	srv := httptest.NewServer(r)
	defer srv.Close()

	src, _ := New(srv.URL + "/ws?token=abc")
	sess, err := src.Connect(context.Background(), "streamer")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !strings.Contains(r.paths[0], "stream=streamer") || !strings.Contains(r.paths[0], "token=abc") {
		t.Errorf("request = %q", r.paths[0])
	}
}

func TestConnect_EndFrameFinishesCleanly(t *testing.T) {
	t.Parallel()
	r := &relay{frames: nil}
	r.frames = []string{frame(t, Frame{Type: FrameConnected}), frame(t, Frame{Type: FrameEnd})}
	srv := httptest.NewServer(r)
	defer srv.Close()

	src, _ := New(srv.URL)
	sess, err := src.Connect(context.Background(), "streamer")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not finished after end frame")
	}
	if sess.Err() != nil {
		t.Errorf("Err = %v, want nil", sess.Err())
	}
}

func TestConnect_ErrorFrameIsClassified(t *testing.T) {
	t.Parallel()
	tests := map[string]error{
		"not_found":    chat.ErrNotFound,
		"offline":      chat.ErrNotFound,
		"rate_limited": chat.ErrRateLimited,
		"blocked":      chat.ErrBlocked,
		"network":      chat.ErrTransient,
	}
	for code, want := range tests {
		r := &relay{}
		r.frames = []string{frame(t, Frame{Type: FrameError, Code: code, Message: "nope"})}
		srv := httptest.NewServer(r)

		src, _ := New(srv.URL)
		_, err := src.Connect(context.Background(), "streamer")
		if !errors.Is(err, want) {
			t.Errorf("code %q: error = %v, want %v", code, err, want)
		}
		srv.Close()
	}
}

func TestConnect_MidSessionErrorFrame(t *testing.T) {
	t.Parallel()
	r := &relay{}
	r.frames = []string{
		frame(t, Frame{Type: FrameConnected}),
		frame(t, Frame{Type: FrameError, Code: "rate_limited"}),
	}
	srv := httptest.NewServer(r)
	defer srv.Close()

	src, _ := New(srv.URL)
	sess, err := src.Connect(context.Background(), "streamer")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-sess.Done()
	if !errors.Is(sess.Err(), chat.ErrRateLimited) {
		t.Errorf("Err = %v, want ErrRateLimited", sess.Err())
	}
}

func TestConnect_HandshakeStatus(t *testing.T) {
	t.Parallel()
	tests := map[int]error{
		http.StatusNotFound:            chat.ErrNotFound,
		http.StatusTooManyRequests:     chat.ErrRateLimited,
		http.StatusForbidden:           chat.ErrBlocked,
		http.StatusInternalServerError: chat.ErrTransient,
	}
	for code, want := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))
		src, _ := New(srv.URL)
		_, err := src.Connect(context.Background(), "streamer")
		if !errors.Is(err, want) {
			t.Errorf("status %d: error = %v, want %v", code, err, want)
		}
		srv.Close()
	}
}

func TestNew_RejectsScheme(t *testing.T) {
	t.Parallel()
	if _, err := New("ftp://relay/%s"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
