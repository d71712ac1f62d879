// Package bot is the single dispatch loop between the chat connection and
// the speech dispatcher, plus the operator operations that drive it.
//
// Every chat event arrives on one channel and is handled in arrival order:
// deduplicated, resolved to spoken text, counted, and submitted to the
// speech worker pool. Submission never blocks the loop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/streamtts/internal/chat"
	"github.com/MrWong99/streamtts/internal/command"
	"github.com/MrWong99/streamtts/internal/dedup"
	"github.com/MrWong99/streamtts/internal/livecheck"
	"github.com/MrWong99/streamtts/internal/observe"
	"github.com/MrWong99/streamtts/internal/speech"
	"github.com/MrWong99/streamtts/internal/stats"
	"github.com/MrWong99/streamtts/internal/supervisor"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// DefaultVoice is the voice used when none is configured.
var DefaultVoice = tts.VoiceProfile{ID: "en-US-Studio-M", Name: "US Male (Studio)"}

var (
	// ErrNotRunning is returned by Start before Run has been called.
	ErrNotRunning = errors.New("bot: dispatch loop not running")

	// ErrAlreadyStarted is returned by Start while the bot is accepting chat.
	ErrAlreadyStarted = errors.New("bot: already started")

	// ErrUnknownVoice is returned by SetVoice for a voice outside the catalogue.
	ErrUnknownVoice = errors.New("bot: unknown voice")

	// ErrNoDiagnostics is returned by TestConnection without a configured checker.
	ErrNoDiagnostics = errors.New("bot: connection diagnostics not configured")
)

// Connection is the chat connection the bot drives. [*supervisor.Supervisor]
// implements it.
type Connection interface {
	Events() <-chan chat.Event
	Start(ctx context.Context) error
	Stop() error
	ResetRateLimit() error
	SetStreamID(id string) error
	Status() supervisor.Status
}

// Speaker runs speech jobs. [*speech.Dispatcher] implements it.
type Speaker interface {
	Submit(job speech.Job) error
	Speak(ctx context.Context, job speech.Job) error
}

// Monitor probes the stream's live status while the bot runs.
// [*livecheck.Monitor] implements it.
type Monitor interface {
	Start(ctx context.Context, streamID string) error
	Stop()
}

// Diagnoser runs connection diagnostics. [*livecheck.Checker] implements it.
type Diagnoser interface {
	Diagnose(ctx context.Context, streamID string) (livecheck.Report, error)
}

var (
	_ Connection = (*supervisor.Supervisor)(nil)
	_ Speaker    = (*speech.Dispatcher)(nil)
	_ Monitor    = (*livecheck.Monitor)(nil)
	_ Diagnoser  = (*livecheck.Checker)(nil)
)

// Option configures a [Bot].
type Option func(*Bot)

// WithDedup sets the dedup cache.
func WithDedup(c *dedup.Cache) Option { return func(b *Bot) { b.dedup = c } }

// WithResolver sets the command resolver.
func WithResolver(r *command.Resolver) Option { return func(b *Bot) { b.resolver = r } }

// WithStats sets the statistics store.
func WithStats(s *stats.Stats) Option { return func(b *Bot) { b.stats = s } }

// WithSink sets where operator log lines and snapshots go.
func WithSink(s stats.Sink) Option { return func(b *Bot) { b.sink = s } }

// WithMonitor enables live-status monitoring while started.
func WithMonitor(m Monitor) Option { return func(b *Bot) { b.monitor = m } }

// WithDiagnoser enables TestConnection.
func WithDiagnoser(d Diagnoser) Option { return func(b *Bot) { b.diagnoser = d } }

// WithVoices sets the voice catalogue. The first entry becomes the current
// voice unless [WithVoice] is also given.
func WithVoices(v []tts.VoiceProfile) Option {
	return func(b *Bot) { b.voices = append([]tts.VoiceProfile(nil), v...) }
}

// WithVoice sets the initial voice.
func WithVoice(v tts.VoiceProfile) Option { return func(b *Bot) { b.voice = v } }

// WithExportDir sets where joined-user lists are exported.
func WithExportDir(dir string) Option { return func(b *Bot) { b.exportDir = dir } }

// WithExportTitle sets the heading of exported user lists.
func WithExportTitle(title string) Option { return func(b *Bot) { b.exportTitle = title } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option { return func(b *Bot) { b.metrics = m } }

// WithAutoStart makes Run call Start as soon as the loop is up. A refused
// start is logged to the sink and Run keeps going.
func WithAutoStart() Option { return func(b *Bot) { b.autoStart = true } }

// Bot owns the dispatch loop.
type Bot struct {
	conn      Connection
	speaker   Speaker
	dedup     *dedup.Cache
	resolver  *command.Resolver
	stats     *stats.Stats
	sink      stats.Sink
	monitor   Monitor
	diagnoser Diagnoser
	metrics   *observe.Metrics

	exportDir   string
	exportTitle string
	autoStart   bool

	accepting atomic.Bool
	// transient throttles operator lines for repeated network failures.
	transient rate.Sometimes

	mu     sync.Mutex
	runCtx context.Context
	voices []tts.VoiceProfile
	voice  tts.VoiceProfile
}

// New creates a Bot reading events from conn and speaking through speaker.
func New(conn Connection, speaker Speaker, opts ...Option) *Bot {
	b := &Bot{
		conn:      conn,
		speaker:   speaker,
		transient: rate.Sometimes{First: 1, Every: 12},
	}
	for _, o := range opts {
		o(b)
	}
	if b.dedup == nil {
		b.dedup = dedup.New()
	}
	if b.resolver == nil {
		b.resolver = command.NewResolver(nil, nil)
	}
	if b.stats == nil {
		b.stats = stats.New(nil)
	}
	if b.sink == nil {
		b.sink = stats.LogSink{}
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	if b.voice.ID == "" {
		if len(b.voices) > 0 {
			b.voice = b.voices[0]
		} else {
			b.voice = DefaultVoice
		}
	}
	b.stats.SetVoice(b.voice.ID)
	return b
}

// Run consumes chat events until ctx is cancelled. Start may only be called
// while Run is active; the connection loop inherits Run's context.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.runCtx = nil
		b.mu.Unlock()
		b.accepting.Store(false)
	}()

	if b.autoStart {
		_ = b.Start(ctx)
	}

	events := b.conn.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			b.handle(ctx, ev)
		}
	}
}

// Accepting reports whether chat events are currently turned into speech.
func (b *Bot) Accepting() bool { return b.accepting.Load() }

func (b *Bot) handle(ctx context.Context, ev chat.Event) {
	b.metrics.RecordChatEvent(ctx, ev.Kind.String())
	if !b.accepting.Load() {
		return
	}
	switch ev.Kind {
	case chat.EventConnected:
		b.logf(stats.LevelSuccess, "✅ Connected to %s live chat for @%s", ev.Platform, ev.UserID)
	case chat.EventUserJoined:
		b.handleJoin(ctx, ev)
	case chat.EventComment:
		b.handleComment(ctx, ev)
	}
	b.publish()
}

func (b *Bot) handleJoin(ctx context.Context, ev chat.Event) {
	user := ev.DisplayName()
	key := dedup.WelcomeKey(userKey(ev))
	if !b.dedup.ShouldSpeak(key) {
		b.metrics.RecordDedupSuppressed(ctx, ev.Kind.String())
		return
	}
	b.stats.Roster().Add(user)
	b.stats.AddWelcome()
	b.logf(stats.LevelWelcome, "👋 Welcome: %s", user)
	b.submit(key, speech.KindWelcome, "Thanks for joining "+user+"!")
}

func (b *Bot) handleComment(ctx context.Context, ev chat.Event) {
	user := ev.DisplayName()
	key := dedup.CommentKey(userKey(ev), ev.Text)
	if !b.dedup.ShouldSpeak(key) {
		b.metrics.RecordDedupSuppressed(ctx, ev.Kind.String())
		b.logf(stats.LevelInfo, "[TTS] Skipping duplicate: %s", key)
		return
	}
	b.stats.AddMessage()

	res := b.resolver.Resolve(user, ev.Text)
	switch res.Kind {
	case command.KindHelp:
		b.logf(stats.LevelInfo, "ℹ️ Help for %s: Commands shown", user)
		b.submit(key, speech.KindHelp, res.Text)
	case command.KindJoke, command.KindYoMama:
		b.stats.AddJoke()
		label := "Joke"
		kind := speech.KindJoke
		if res.Kind == command.KindYoMama {
			label, kind = "Yo Mama", speech.KindYoMama
		}
		b.logf(stats.LevelTTS, "😂 %s for %s: %s", label, user, truncate(res.Text, 50))
		b.submit(key, kind, res.Text)
	default:
		b.logf(stats.LevelTTS, "💬 %s", res.Text)
		b.submit(key, speech.KindSpeech, res.Text)
	}
}

// submit queues a job for the event deduplicated under key. A job dropped by
// a full queue releases key so a repeat of the event is spoken.
func (b *Bot) submit(key string, kind speech.Kind, text string) {
	err := b.speaker.Submit(speech.NewJob(kind, text, b.Voice()))
	switch {
	case err == nil:
	case errors.Is(err, speech.ErrQueueFull):
		b.dedup.Forget(key)
		b.logf(stats.LevelWarning, "⚠️ Speech queue full, dropped: %s", truncate(text, 50))
	default:
		b.logf(stats.LevelError, "❌ TTS Error: %v", err)
	}
}

// userKey is the identity used for deduplication.
func userKey(ev chat.Event) string {
	if ev.UserID != "" {
		return ev.UserID
	}
	return ev.Username
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (b *Bot) logf(level stats.Level, format string, args ...any) {
	b.sink.Log(stats.Entry{Time: time.Now(), Level: level, Message: fmt.Sprintf(format, args...)})
}

func (b *Bot) publish() {
	b.sink.Update(b.Snapshot())
}

// Snapshot returns current statistics including connection state.
func (b *Bot) Snapshot() stats.Snapshot {
	snap := b.stats.Snapshot()
	st := b.conn.Status()
	snap.Connection = st.State.String()
	snap.Running = b.accepting.Load()
	return snap
}

// Stats returns the statistics store.
func (b *Bot) Stats() *stats.Stats { return b.stats }
