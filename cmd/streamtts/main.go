// Command streamtts reads livestream chat aloud.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/streamtts/internal/app"
	"github.com/MrWong99/streamtts/internal/config"
	"github.com/MrWong99/streamtts/internal/observe"
	"github.com/MrWong99/streamtts/internal/tui"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds the graceful shutdown after the bot stops.
const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	streamID   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "streamtts",
		Short:         "Read livestream chat aloud with text-to-speech",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadEnv(g.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "environment file loaded before the config")
	root.PersistentFlags().StringVarP(&g.streamID, "stream-id", "u", "", "stream username, overrides stream.id")

	root.AddCommand(
		newRunCmd(g),
		newTestSpeechCmd(g),
		newTestConnectionCmd(g),
		newVoicesCmd(g),
		newLinksCmd(g),
	)
	return root
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var noTUI bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot with the terminal control panel",
		Long: `Start the bot. With the terminal panel the bot waits for the operator
to press "s"; with --no-tui it connects right away when a stream is set and
is controlled through the HTTP API (server.listen_addr).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), g, !noTUI)
		},
	}
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "run headless: log to stderr and start immediately")
	return cmd
}

func runBot(parent context.Context, g *globalFlags, useTUI bool) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The panel owns the terminal, so logs go to a file while it is shown.
	var out io.Writer = os.Stderr
	if useTUI {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	logger, level := newLogger(cfg.Server.LogLevel, out)
	slog.SetDefault(logger)

	slog.Info("streamtts starting",
		"version", version,
		"config", g.configPath,
		"stream_id", cfg.Stream.ID,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []app.Option{
		app.WithConfigPath(g.configPath),
		app.WithLevelVar(level),
	}
	var sink *tui.Sink
	if useTUI {
		sink = tui.NewSink(0)
		opts = append(opts, app.WithSinks(sink))
	} else {
		printStartupSummary(os.Stdout, cfg)
		if cfg.Stream.ID != "" {
			opts = append(opts, app.WithAutoStart())
		} else {
			slog.Warn("no stream configured; set one through POST /api/stream and start via POST /api/start")
		}
	}

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error { return application.Run(egCtx) })
	if useTUI {
		eg.Go(func() error {
			// Quitting the panel ends the run.
			defer cancel()
			m := tui.New(egCtx, application.Bot(), sink,
				tui.WithLinks(application.Links()),
				tui.WithStreamID(cfg.Stream.ID),
			)
			return tui.Run(egCtx, m)
		})
	} else {
		slog.Info("bot ready, press Ctrl+C to shut down")
	}

	runErr := eg.Wait()
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	slog.Info("goodbye")
	return runErr
}

// loadConfig loads the config file and applies the command-line overrides.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", g.configPath)
		}
		return nil, err
	}
	if id := strings.TrimPrefix(strings.TrimSpace(g.streamID), "@"); id != "" {
		cfg.Stream.ID = id
	}
	return cfg, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(app.SlogLevel(level))
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), lv
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        streamtts, startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Stream", orDefault(cfg.Stream.ID, "(not set)"))
	printRow(w, "Chat", providerLabel(cfg.Providers.Chat))
	printRow(w, "TTS", providerLabel(cfg.Providers.TTS))
	printRow(w, "TTS fallbacks", fmt.Sprint(len(cfg.Providers.TTSFallbacks)))
	printRow(w, "Player", providerLabel(cfg.Providers.Player))
	printRow(w, "Voice", orDefault(cfg.Speech.Voice, "(first in catalogue)"))
	printRow(w, "Voices", fmt.Sprint(len(cfg.Speech.Voices)))
	printRow(w, "Speech workers", fmt.Sprint(cfg.Speech.Workers))
	printRow(w, "Control API", orDefault(cfg.Server.ListenAddr, "(disabled)"))
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", label, value)
}

func providerLabel(e config.ProviderEntry) string {
	if e.Name == "" {
		return "(not configured)"
	}
	if e.Model != "" {
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
