// Package app wires all streamtts subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the dispatch loop together with the control API
// and the file watchers, and Shutdown tears everything down in order.
//
// For testing, inject mock providers through [Providers] and replace the
// remaining collaborators via functional options (WithHTTPClient,
// WithSinks, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/streamtts/internal/bot"
	"github.com/MrWong99/streamtts/internal/chat"
	"github.com/MrWong99/streamtts/internal/command"
	"github.com/MrWong99/streamtts/internal/config"
	"github.com/MrWong99/streamtts/internal/control"
	"github.com/MrWong99/streamtts/internal/dedup"
	"github.com/MrWong99/streamtts/internal/health"
	"github.com/MrWong99/streamtts/internal/links"
	"github.com/MrWong99/streamtts/internal/livecheck"
	"github.com/MrWong99/streamtts/internal/observe"
	"github.com/MrWong99/streamtts/internal/resilience"
	"github.com/MrWong99/streamtts/internal/speech"
	"github.com/MrWong99/streamtts/internal/stats"
	"github.com/MrWong99/streamtts/internal/supervisor"
	"github.com/MrWong99/streamtts/pkg/audio"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// recorderLimit is the number of log entries kept for GET /api/logs.
const recorderLimit = 500

// NamedTTS is a TTS provider together with its registry name.
type NamedTTS struct {
	Name     string
	Provider tts.Provider
}

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry.
type Providers struct {
	// TTS is the primary speech provider. Required.
	TTS NamedTTS

	// TTSFallbacks are tried in order when the primary fails.
	TTSFallbacks []NamedTTS

	// Chat is the livestream chat source. Required.
	Chat chat.Source

	// Player plays synthesized clips. Required.
	Player audio.Player
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	configPath string
	level      *slog.LevelVar
	metrics    *observe.Metrics
	httpClient *http.Client
	extraSinks []stats.Sink
	autoStart  bool

	// Subsystems, initialised in New and torn down in Shutdown.
	recorder   *stats.Recorder
	tts        *resilience.TTSFallback
	speech     *speech.Dispatcher
	supervisor *supervisor.Supervisor
	checker    *livecheck.Checker
	monitor    *livecheck.Monitor
	jokes      *command.WordList
	yoMama     *command.WordList
	dedup      *dedup.Cache
	links      *links.Store
	bot        *bot.Bot
	health     *health.Handler
	control    *control.Server
	watcher    *config.Watcher

	// mu guards cfg after New returns; the config watcher replaces it.
	mu sync.Mutex

	// rewatch restarts the data-file watcher after a path change.
	rewatch chan struct{}

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithConfigPath enables hot reload of the config file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLevelVar lets config reloads change the log level of the handler
// that reads lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics injects a metrics instance instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHTTPClient injects the client used for live-status probes.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// WithSinks adds sinks that receive operator log lines and snapshots, such
// as the terminal panel.
func WithSinks(sinks ...stats.Sink) Option {
	return func(a *App) { a.extraSinks = append(a.extraSinks, sinks...) }
}

// WithAutoStart starts reading chat as soon as Run begins.
func WithAutoStart() Option {
	return func(a *App) { a.autoStart = true }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.TTS.Provider == nil || providers.Chat == nil || providers.Player == nil {
		return nil, errors.New("app: tts, chat and player providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		rewatch:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// The bot is built last, but the subsystems below report to it.
	var b *bot.Bot

	// ── 1. Speech ────────────────────────────────────────────────────────
	a.initSpeech(func(r speech.Result) { b.HandleSpeechResult(r) })

	// ── 2. Chat connection ───────────────────────────────────────────────
	a.supervisor = supervisor.New(providers.Chat, cfg.Stream.ID,
		supervisor.WithPolicy(retryPolicy(cfg.Retry)),
		supervisor.WithMetrics(a.metrics),
		supervisor.WithOnTransition(func(t supervisor.Transition) { b.HandleTransition(t) }),
		supervisor.WithOnCountdown(func(d time.Duration) { b.HandleCountdown(d) }),
	)

	// ── 3. Live status ───────────────────────────────────────────────────
	a.checker = livecheck.NewChecker(checkerConfig(cfg.Stream), a.httpClient)
	a.monitor = livecheck.NewMonitor(a.checker,
		livecheck.WithInterval(cfg.Stream.CheckInterval),
		livecheck.WithMonitorMetrics(a.metrics),
		livecheck.WithOnChange(func(c livecheck.Change) { b.HandleLiveChange(c) }),
		livecheck.WithOnCheck(func(s livecheck.Status, err error) { b.HandleLiveCheck(s, err) }),
	)
	a.closers = append(a.closers, func(context.Context) error {
		a.monitor.Stop()
		return nil
	})

	// ── 4. Commands and dedup ────────────────────────────────────────────
	a.jokes = command.NewWordList(cfg.Commands.JokesFile)
	a.yoMama = command.NewWordList(cfg.Commands.YoMamaFile)
	resolver := command.NewResolver(a.jokes, a.yoMama,
		command.WithDemojize(command.NewDemojizer().Replace))
	a.dedup = dedup.New(dedup.WithResetInterval(cfg.Dedup.ResetInterval))

	// ── 5. Links ─────────────────────────────────────────────────────────
	a.links = links.NewStore(cfg.Links.File)

	// ── 6. Bot ───────────────────────────────────────────────────────────
	a.recorder = stats.NewRecorder(recorderLimit)
	sink := append(stats.Fanout{stats.LogSink{}, a.recorder}, a.extraSinks...)
	voices := voiceProfiles(cfg)
	botOpts := []bot.Option{
		bot.WithDedup(a.dedup),
		bot.WithResolver(resolver),
		bot.WithSink(sink),
		bot.WithMonitor(a.monitor),
		bot.WithDiagnoser(a.checker),
		bot.WithVoices(voices),
		bot.WithExportDir(cfg.Users.ExportDir),
		bot.WithExportTitle(cfg.Users.ExportTitle),
		bot.WithMetrics(a.metrics),
	}
	if v, ok := initialVoice(cfg, voices); ok {
		botOpts = append(botOpts, bot.WithVoice(v))
	}
	if a.autoStart {
		botOpts = append(botOpts, bot.WithAutoStart())
	}
	b = bot.New(a.supervisor, a.speech, botOpts...)
	a.bot = b

	// ── 7. Health and control API ────────────────────────────────────────
	a.health = health.New(
		health.Checker{Name: "chat", Check: a.checkChat},
		health.QueueChecker("speech_queue", a.speech.Pending, cfg.Speech.QueueSize),
		health.BreakerChecker("tts", a.tts.Status),
	)
	a.control = control.New(a.bot,
		control.WithLinks(a.links),
		control.WithLogs(a.recorder),
		control.WithHealth(a.health),
		control.WithMetrics(a.metrics),
	)

	// ── 8. Config hot reload ─────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig)
		if err != nil {
			_ = a.Shutdown(ctx)
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append([]func(context.Context) error{func(context.Context) error {
			w.Stop()
			return nil
		}}, a.closers...)
	}

	slog.Info("app initialised",
		"tts", providers.TTS.Name,
		"tts_fallbacks", len(providers.TTSFallbacks),
		"chat", providers.Chat.Name(),
		"stream_id", cfg.Stream.ID,
		"voices", len(voices),
	)
	return a, nil
}

// initSpeech wraps the TTS providers in a failover group and starts the
// speech workers.
func (a *App) initSpeech(onResult func(speech.Result)) {
	p := a.providers
	a.tts = resilience.NewTTSFallback(p.TTS.Provider, p.TTS.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("tts circuit breaker", "provider", name, "from", from.String(), "to", to.String())
			},
		},
	})
	for _, fb := range p.TTSFallbacks {
		a.tts.AddFallback(fb.Name, fb.Provider, nil)
	}

	sp := a.cfg.Speech
	a.speech = speech.NewDispatcher(a.tts, p.Player, sp.TempDir,
		speech.WithWorkers(sp.Workers),
		speech.WithQueueSize(sp.QueueSize),
		speech.WithMetrics(a.metrics),
		speech.WithOnResult(onResult),
	)
	a.closers = append(a.closers, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, sp.CloseTimeout)
		defer cancel()
		return a.speech.Close(ctx)
	})
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Bot returns the dispatch loop and its operator operations.
func (a *App) Bot() *bot.Bot { return a.bot }

// Links returns the links file store.
func (a *App) Links() *links.Store { return a.links }

// Recorder returns the in-memory operator log.
func (a *App) Recorder() *stats.Recorder { return a.recorder }

// Handler returns the control API handler.
func (a *App) Handler() http.Handler { return a.control.Handler() }

// Config returns the config currently in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the dispatch loop, the control API (when server.listen_addr is
// set) and the data-file watcher, and blocks until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.bot.Run(gctx) })

	if addr := a.Config().Server.ListenAddr; addr != "" {
		g.Go(func() error {
			if err := a.control.ListenAndServe(gctx, addr); err != nil {
				return fmt.Errorf("app: control api: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.watchFiles(gctx)
		return nil
	})

	return g.Wait()
}

func (a *App) checkChat(context.Context) error {
	st := a.supervisor.Status()
	if st.State == supervisor.StateError {
		return fmt.Errorf("chat connection failed: %s", st.LastError)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the bot and tears down all subsystems. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Disconnect chat first so no new speech is queued.
		if a.bot != nil {
			if err := a.bot.Stop(); err != nil {
				slog.Warn("chat disconnect error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// retryPolicy converts the retry config. Zero fields keep the supervisor
// defaults.
func retryPolicy(rc config.RetryConfig) supervisor.RetryPolicy {
	return supervisor.RetryPolicy{
		BaseCooldown:    rc.BaseCooldown,
		MaxCooldown:     rc.MaxCooldown,
		Multiplier:      rc.Multiplier,
		BlockedCooldown: rc.BlockedCooldown,
		MaxAttempts:     rc.MaxAttempts,
	}
}

func checkerConfig(sc config.StreamConfig) livecheck.Config {
	return livecheck.Config{
		LiveURL:         sc.LiveURL,
		ProfileURL:      sc.ProfileURL,
		ConnectivityURL: sc.ConnectivityURL,
		PlatformURL:     sc.PlatformURL,
		Indicators:      sc.Indicators,
		UserAgent:       sc.UserAgent,
		Timeout:         sc.Timeout,
	}
}

// voiceProfiles converts the configured voice catalogue.
func voiceProfiles(cfg *config.Config) []tts.VoiceProfile {
	out := make([]tts.VoiceProfile, 0, len(cfg.Speech.Voices))
	for _, v := range cfg.Speech.Voices {
		out = append(out, voiceProfile(cfg, v.ID, v.Label))
	}
	return out
}

func voiceProfile(cfg *config.Config, id, label string) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:          id,
		Name:        label,
		Provider:    cfg.Providers.TTS.Name,
		SpeedFactor: cfg.Speech.SpeedFactor,
		PitchShift:  cfg.Speech.PitchShift,
	}
}

// initialVoice resolves speech.voice against the catalogue by ID or label.
// A voice outside the catalogue is used as a bare provider voice ID.
func initialVoice(cfg *config.Config, voices []tts.VoiceProfile) (tts.VoiceProfile, bool) {
	want := strings.TrimSpace(cfg.Speech.Voice)
	if want == "" {
		return tts.VoiceProfile{}, false
	}
	for _, v := range voices {
		if v.ID == want || strings.EqualFold(v.Name, want) {
			return v, true
		}
	}
	return voiceProfile(cfg, want, ""), true
}

// SlogLevel converts a config log level for use with a [slog.LevelVar].
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
