// Package control serves the operator HTTP API.
//
// Every action of the terminal panel is also reachable over HTTP so the bot
// can be driven from scripts or a stream deck:
//
//	POST /api/start               begin reading chat
//	POST /api/stop                stop reading chat
//	POST /api/test-speech         speak {"text": "..."} (optional)
//	POST /api/test-connection     run connection diagnostics
//	POST /api/reset-rate-limit    clear the reconnect cooldown
//	POST /api/stream              set {"stream_id": "..."}
//	POST /api/voice               select {"voice": "<label or id>"}
//	POST /api/users/export        write the joined-users file
//	POST /api/users/clear         forget joined users
//	POST /api/links/reload        re-read the links file
//	GET  /api/status              statistics and connection state
//	GET  /api/voices              voice catalogue
//	GET  /api/users               join history and unique users
//	GET  /api/links               parsed links file
//	GET  /api/logs                recent activity log
//	GET  /metrics                 Prometheus metrics
//	GET  /healthz, /readyz        health probes
//
// Responses are JSON. Failures carry {"error": "..."} and a status code
// derived from the error.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/streamtts/internal/bot"
	"github.com/MrWong99/streamtts/internal/health"
	"github.com/MrWong99/streamtts/internal/links"
	"github.com/MrWong99/streamtts/internal/livecheck"
	"github.com/MrWong99/streamtts/internal/observe"
	"github.com/MrWong99/streamtts/internal/speech"
	"github.com/MrWong99/streamtts/internal/stats"
	"github.com/MrWong99/streamtts/internal/supervisor"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// Controller is the bot surface the API drives. [*bot.Bot] implements it.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	ResetRateLimit() error
	SetStreamID(id string) error
	TestSpeech(ctx context.Context, text string) error
	TestConnection(ctx context.Context) (livecheck.Report, error)
	Voice() tts.VoiceProfile
	Voices() []tts.VoiceProfile
	SetVoice(nameOrID string) (tts.VoiceProfile, error)
	ExportUsers() (string, error)
	ClearUsers()
	Snapshot() stats.Snapshot
	Stats() *stats.Stats
}

// Links is the links file the API exposes. [*links.Store] implements it.
type Links interface {
	Load() (links.Document, error)
	Reload() (links.Document, error)
}

// LogSource returns recent operator log entries. [*stats.Recorder]
// implements it.
type LogSource interface {
	Entries() []stats.Entry
}

var (
	_ Controller = (*bot.Bot)(nil)
	_ Links      = (*links.Store)(nil)
	_ LogSource  = (*stats.Recorder)(nil)
)

// Option configures a [Server].
type Option func(*Server)

// WithLinks exposes a links file under /api/links.
func WithLinks(l Links) Option { return func(s *Server) { s.links = l } }

// WithLogs exposes recent log entries under /api/logs.
func WithLogs(l LogSource) Option { return func(s *Server) { s.logs = l } }

// WithHealth registers /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithMetrics records request metrics and traces for every API call.
func WithMetrics(m *observe.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithMetricsHandler replaces the /metrics handler. The default serves the
// Prometheus default registry, which the otel exporter writes to.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metricsHandler = h } }

// WithShutdownTimeout bounds graceful shutdown in [Server.ListenAndServe].
// The default is 5 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server is the control API.
type Server struct {
	ctrl            Controller
	links           Links
	logs            LogSource
	health          *health.Handler
	metrics         *observe.Metrics
	metricsHandler  http.Handler
	shutdownTimeout time.Duration
}

// New creates a [Server] for ctrl.
func New(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:            ctrl,
		metricsHandler:  promhttp.Handler(),
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/test-speech", s.handleTestSpeech)
	mux.HandleFunc("POST /api/test-connection", s.handleTestConnection)
	mux.HandleFunc("POST /api/reset-rate-limit", s.handleResetRateLimit)
	mux.HandleFunc("POST /api/stream", s.handleStream)
	mux.HandleFunc("POST /api/voice", s.handleVoice)
	mux.HandleFunc("POST /api/users/export", s.handleExportUsers)
	mux.HandleFunc("POST /api/users/clear", s.handleClearUsers)
	mux.HandleFunc("POST /api/links/reload", s.handleReloadLinks)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("GET /api/users", s.handleUsers)
	mux.HandleFunc("GET /api/links", s.handleLinks)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.Handle("GET /metrics", s.metricsHandler)
	if s.health != nil {
		s.health.Register(mux)
	}

	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("control api listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// errorStatus maps operation errors to HTTP status codes.
func errorStatus(err error) int {
	var cd *supervisor.CooldownError
	switch {
	case errors.As(err, &cd):
		return http.StatusTooManyRequests
	case errors.Is(err, bot.ErrAlreadyStarted),
		errors.Is(err, supervisor.ErrRunning),
		errors.Is(err, supervisor.ErrConnected):
		return http.StatusConflict
	case errors.Is(err, bot.ErrUnknownVoice),
		errors.Is(err, supervisor.ErrNoStream):
		return http.StatusBadRequest
	case errors.Is(err, stats.ErrNoUsers),
		errors.Is(err, links.ErrNoFile):
		return http.StatusNotFound
	case errors.Is(err, bot.ErrNotRunning),
		errors.Is(err, bot.ErrNoDiagnostics),
		errors.Is(err, speech.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, speech.ErrSynthesis),
		errors.Is(err, speech.ErrPlayback):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	// RetryAfter is the cooldown left in seconds for 429 responses.
	RetryAfter int `json:"retry_after,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var cd *supervisor.CooldownError
	if errors.As(err, &cd) {
		body.RetryAfter = int(cd.Remaining.Round(time.Second).Seconds())
	}
	writeJSON(w, errorStatus(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("control: encode response", "err", err)
	}
}

// decodeOptional decodes a JSON body into v. An empty body leaves v as is.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
