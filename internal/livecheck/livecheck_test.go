package livecheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type page struct {
	mu     sync.Mutex
	status int
	body   string
	agent  string
	hits   int
}

func (p *page) set(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status, p.body = status, body
}

func (p *page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits++
	p.agent = r.Header.Get("User-Agent")
	w.WriteHeader(p.status)
	_, _ = w.Write([]byte(p.body))
}

func newPage(t *testing.T, status int, body string) (*page, *httptest.Server) {
	t.Helper()
	p := &page{status: status, body: body}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, srv
}

func TestCheck(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		want   Status
		err    bool
	}{
		{"live indicator", http.StatusOK, `{"room_id":"7"}`, StatusOnline, false},
		{"case insensitive", http.StatusOK, "now streaming", StatusOnline, false},
		{"offline", http.StatusOK, "<html>nothing here</html>", StatusOffline, false},
		{"http error", http.StatusServiceUnavailable, "", StatusError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, srv := newPage(t, tt.status, tt.body)
			c := NewChecker(Config{LiveURL: srv.URL + "/@%s/live"}, nil)

			got, err := c.Check(context.Background(), "alice")
			if got != tt.want || (err != nil) != tt.err {
				t.Errorf("Check = %q, %v; want %q, err=%v", got, err, tt.want, tt.err)
			}
			p.mu.Lock()
			agent := p.agent
			p.mu.Unlock()
			if agent != DefaultUserAgent {
				t.Errorf("User-Agent = %q", agent)
			}
			var sce *StatusCodeError
			if tt.err && !errors.As(err, &sce) {
				t.Errorf("error = %T, want *StatusCodeError", err)
			}
		})
	}
}

func TestCheck_NoURL(t *testing.T) {
	t.Parallel()
	if _, err := NewChecker(Config{}, nil).Check(context.Background(), "x"); err == nil {
		t.Error("expected error without live url")
	}
}

func TestMonitor_ProbeReportsChanges(t *testing.T) {
	t.Parallel()
	p, srv := newPage(t, http.StatusOK, "LIVE")

	var mu sync.Mutex
	var changes []Change
	checks := 0
	m := NewMonitor(NewChecker(Config{LiveURL: srv.URL}, nil),
		WithOnChange(func(c Change) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, c)
		}),
		WithOnCheck(func(Status, error) {
			mu.Lock()
			defer mu.Unlock()
			checks++
		}),
	)

	ctx := context.Background()
	m.Probe(ctx)
	m.Probe(ctx)
	p.set(http.StatusOK, "bye")
	m.Probe(ctx)
	p.set(http.StatusForbidden, "")
	m.Probe(ctx)

	mu.Lock()
	defer mu.Unlock()
	if checks != 4 {
		t.Errorf("checks = %d, want 4", checks)
	}
	want := []Status{StatusOnline, StatusOffline, StatusError}
	if len(changes) != len(want) {
		t.Fatalf("changes = %+v, want %v", changes, want)
	}
	for i, s := range want {
		if changes[i].To != s {
			t.Errorf("change[%d] = %q, want %q", i, changes[i].To, s)
		}
	}
	if changes[0].From != StatusUnknown {
		t.Errorf("first change from %q, want unknown", changes[0].From)
	}
}

func TestMonitor_TransportErrorKeepsStatus(t *testing.T) {
	t.Parallel()
	_, srv := newPage(t, http.StatusOK, "LIVE")
	m := NewMonitor(NewChecker(Config{LiveURL: srv.URL}, nil))
	if got := m.Probe(context.Background()); got != StatusOnline {
		t.Fatalf("Probe = %q, want online", got)
	}
	srv.Close()
	if got := m.Probe(context.Background()); got != StatusOnline {
		t.Errorf("Probe after server gone = %q, want previous status kept", got)
	}
}

func TestMonitor_StartStop(t *testing.T) {
	t.Parallel()
	p, srv := newPage(t, http.StatusOK, "LIVE")
	m := NewMonitor(NewChecker(Config{LiveURL: srv.URL}, nil), WithInterval(time.Second))

	if err := m.Start(context.Background(), "alice"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for m.Status() != StatusOnline && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	m.Stop()
	if m.Status() != StatusOnline {
		t.Fatalf("status = %q, want online after scheduled probe", m.Status())
	}

	p.mu.Lock()
	hits := p.hits
	p.mu.Unlock()
	time.Sleep(1200 * time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hits != hits {
		t.Errorf("probes continued after Stop: %d → %d", hits, p.hits)
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {})
	mux.HandleFunc("/home", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	mux.HandleFunc("/@alice", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("viewer_count: 12")) })
	mux.HandleFunc("/@bob", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("hello")) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewChecker(Config{
		ConnectivityURL: srv.URL + "/ping",
		PlatformURL:     srv.URL + "/home",
		ProfileURL:      srv.URL + "/@%s",
	}, nil)

	t.Run("live", func(t *testing.T) {
		rep, err := c.Diagnose(context.Background(), "alice")
		if err != nil {
			t.Fatalf("Diagnose: %v", err)
		}
		got := make([]Outcome, len(rep.Steps))
		for i, s := range rep.Steps {
			got[i] = s.Outcome
		}
		want := []Outcome{OutcomeOK, OutcomeWarning, OutcomeOK, OutcomeOK}
		if len(got) != len(want) {
			t.Fatalf("steps = %+v", rep.Steps)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("step %s = %s, want %s", rep.Steps[i].Name, got[i], want[i])
			}
		}
		if !rep.Live || !rep.OK() {
			t.Errorf("report = %+v, want live and ok", rep)
		}
	})

	t.Run("offline", func(t *testing.T) {
		rep, _ := c.Diagnose(context.Background(), "bob")
		if rep.Live || rep.Steps[len(rep.Steps)-1].Outcome != OutcomeWarning {
			t.Errorf("report = %+v, want offline warning", rep)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rep, _ := c.Diagnose(context.Background(), "nobody")
		if rep.OK() || len(rep.Steps) != 3 || rep.Steps[2].Name != "profile" {
			t.Errorf("report = %+v, want failed profile step and no live step", rep)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		if _, err := c.Diagnose(context.Background(), ""); err == nil {
			t.Error("expected error for empty stream id")
		}
	})
}
