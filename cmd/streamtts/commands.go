package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/streamtts/internal/app"
	"github.com/MrWong99/streamtts/internal/config"
	"github.com/MrWong99/streamtts/internal/links"
)

// withApp builds the application without starting the dispatch loop, runs
// fn and shuts the application down again.
func withApp(parent context.Context, g *globalFlags, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	logger, _ := newLogger(cfg.Server.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newTestSpeechCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-speech [text]",
		Short: "Speak a test phrase with the configured voice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				return a.Bot().TestSpeech(ctx, strings.Join(args, " "))
			})
		},
	}
}

func newTestConnectionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check internet, platform and stream reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				rep, err := a.Bot().TestConnection(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "STEP\tRESULT\tDETAIL")
				for _, s := range rep.Steps {
					fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Outcome, s.Message)
				}
				w.Flush()
				if !rep.OK() {
					return errors.New("connection test failed")
				}
				return nil
			})
		},
	}
}

func newVoicesCmd(g *globalFlags) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voice catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()

			if !remote {
				fmt.Fprintln(w, "LABEL\tID\t")
				for _, v := range cfg.Speech.Voices {
					mark := ""
					if v.ID == cfg.Speech.Voice || strings.EqualFold(v.Label, cfg.Speech.Voice) {
						mark = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", v.Label, v.ID, mark)
				}
				return nil
			}

			logger, _ := newLogger(cfg.Server.LogLevel, os.Stderr)
			slog.SetDefault(logger)
			reg := config.NewRegistry()
			registerBuiltinProviders(cmd.Context(), reg, cfg)
			p, err := reg.CreateTTS(cfg.Providers.TTS)
			if err != nil {
				return fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
			}
			voices, err := p.ListVoices(cmd.Context())
			if err != nil {
				return fmt.Errorf("list voices: %w", err)
			}
			fmt.Fprintln(w, "ID\tNAME\tLANGUAGE")
			for _, v := range voices {
				fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, v.Name, v.LanguageCode)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the TTS provider for every voice it offers")
	return cmd
}

func newLinksCmd(g *globalFlags) *cobra.Command {
	var open int
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Print the links file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			store := links.NewStore(cfg.Links.File)
			doc, err := store.Load()
			if err != nil {
				return err
			}

			if open > 0 {
				items := doc.Links()
				if open > len(items) {
					return fmt.Errorf("link %d does not exist, the file has %d links", open, len(items))
				}
				return store.Open(items[open-1].URL)
			}

			out := cmd.OutOrStdout()
			n := 0
			for _, sec := range doc.Sections {
				if sec.Title != "" {
					fmt.Fprintf(out, "\n%s\n", sec.Title)
				}
				for _, it := range sec.Items {
					if it.Kind != links.KindLink {
						fmt.Fprintf(out, "     %s\n", it.Text)
						continue
					}
					n++
					fmt.Fprintf(out, "%3d  %s\n", n, it.URL)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&open, "open", 0, "open link number N in the browser")
	return cmd
}
