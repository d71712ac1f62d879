package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/streamtts/internal/app"
	"github.com/MrWong99/streamtts/internal/chat"
	chatmock "github.com/MrWong99/streamtts/internal/chat/mock"
	"github.com/MrWong99/streamtts/internal/config"
	audiomock "github.com/MrWong99/streamtts/pkg/audio/mock"
	ttsmock "github.com/MrWong99/streamtts/pkg/provider/tts/mock"
)

// testConfig returns a defaulted config whose files live in a temp dir and
// whose live-status probes hit a local server.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div class="LIVE">streaming</div>`))
	}))
	t.Cleanup(live.Close)

	jokes := filepath.Join(dir, "jokes.txt")
	if err := os.WriteFile(jokes, []byte("Why do gophers dig? For the ground truth.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Stream.ID = "streamer"
	cfg.Stream.LiveURL = live.URL + "/%s"
	cfg.Stream.ProfileURL = live.URL + "/@%s"
	cfg.Stream.ConnectivityURL = live.URL
	cfg.Stream.PlatformURL = live.URL
	cfg.Stream.CheckInterval = time.Hour
	cfg.Commands.JokesFile = jokes
	cfg.Commands.YoMamaFile = filepath.Join(dir, "yo_mama.txt")
	cfg.Links.File = filepath.Join(dir, "links.txt")
	cfg.Users.ExportDir = dir
	cfg.Speech.TempDir = dir
	config.ApplyDefaults(cfg)
	return cfg
}

type fixture struct {
	source *chatmock.Source
	tts    *ttsmock.Provider
	player *audiomock.Player
}

func (f *fixture) providers() *app.Providers {
	return &app.Providers{
		TTS:    app.NamedTTS{Name: "mock", Provider: f.tts},
		Chat:   f.source,
		Player: f.player,
	}
}

func newFixture() *fixture {
	return &fixture{source: &chatmock.Source{}, tts: &ttsmock.Provider{}, player: &audiomock.Player{}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	f := newFixture()
	p := f.providers()
	p.Chat = nil
	if _, err := app.New(context.Background(), testConfig(t), p); err == nil {
		t.Fatal("New without a chat source succeeded")
	}
}

func TestNew_MissingConfigFileForWatcher(t *testing.T) {
	t.Parallel()
	_, err := app.New(context.Background(), testConfig(t), newFixture().providers(),
		app.WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	if err == nil || !strings.Contains(err.Error(), "app: init config watcher") {
		t.Fatalf("New = %v, want a config watcher error", err)
	}
}

func TestApp_ControlAPI(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(t), newFixture().providers())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz", "/api/status", "/api/voices"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, res.StatusCode)
		}
	}

	// The default catalogue follows the google provider name.
	res, err := http.Get(srv.URL + "/api/voices")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var voices []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&voices); err != nil {
		t.Fatalf("decode voices: %v", err)
	}
	if len(voices) != len(config.DefaultVoices) {
		t.Errorf("voices = %d, want %d", len(voices), len(config.DefaultVoices))
	}
}

func TestApp_SpeaksChat(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a, err := app.New(context.Background(), testConfig(t), f.providers(), app.WithAutoStart())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, "chat session", func() bool { return f.source.LastSession() != nil })
	sess := f.source.LastSession()
	sess.Emit(chat.Event{Kind: chat.EventComment, UserID: "u1", Username: "alice", Text: "hello there"})
	sess.Emit(chat.Event{Kind: chat.EventComment, UserID: "u2", Username: "bob", Text: "!joke"})

	waitFor(t, "two clips played", func() bool { return len(f.player.Calls()) == 2 })
	calls := f.tts.Calls()
	if calls[0].Text != "alice says hello there" {
		t.Errorf("first text = %q", calls[0].Text)
	}
	if !strings.Contains(calls[1].Text, "ground truth") {
		t.Errorf("joke text = %q, want the word list line", calls[1].Text)
	}
	if calls[0].Voice.ID != "en-US-Studio-M" {
		t.Errorf("voice = %q, want the first catalogue voice", calls[0].Voice.ID)
	}
	waitFor(t, "stats", func() bool { return a.Bot().Snapshot().Messages == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
	for _, c := range f.player.Calls() {
		if _, err := os.Stat(c.Path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("clip %s left behind", c.Path)
		}
	}
}

func TestApp_TTSFailover(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.tts.SynthesizeErr = errors.New("quota exceeded")
	backup := &ttsmock.Provider{}
	p := f.providers()
	p.TTSFallbacks = []app.NamedTTS{{Name: "backup", Provider: backup}}

	a, err := app.New(context.Background(), testConfig(t), p)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if err := a.Bot().TestSpeech(context.Background(), "check"); err != nil {
		t.Fatalf("TestSpeech() = %v", err)
	}
	if len(backup.Calls()) != 1 || len(f.player.Calls()) != 1 {
		t.Errorf("backup calls = %d, plays = %d, want 1 each", len(backup.Calls()), len(f.player.Calls()))
	}
}

func TestShutdown_RespectsDeadline(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(t), newFixture().providers())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() = %v, want context.Canceled", err)
	}
	// A second call is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}
