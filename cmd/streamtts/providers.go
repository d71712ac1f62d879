package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/streamtts/internal/app"
	"github.com/MrWong99/streamtts/internal/chat"
	"github.com/MrWong99/streamtts/internal/chat/discord"
	"github.com/MrWong99/streamtts/internal/chat/twitch"
	"github.com/MrWong99/streamtts/internal/chat/wsbridge"
	"github.com/MrWong99/streamtts/internal/config"
	"github.com/MrWong99/streamtts/pkg/audio"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
	"github.com/MrWong99/streamtts/pkg/provider/tts/coqui"
	"github.com/MrWong99/streamtts/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/streamtts/pkg/provider/tts/google"
	"github.com/MrWong99/streamtts/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry, cfg *config.Config) {
	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("google", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []google.Option
		path, source, err := config.FindGoogleCredentials(entry.OptionString("credentials_file"), cfg.Credentials.SearchDirs)
		switch {
		case err == nil:
			slog.Info("google credentials found", "path", path, "source", source)
			opts = append(opts, google.WithCredentialsFile(path))
		case errors.Is(err, config.ErrNoCredentials):
			slog.Warn("no google credentials file found, falling back to application default credentials", "err", err)
		default:
			return nil, err
		}
		if entry.BaseURL != "" {
			opts = append(opts, google.WithEndpoint(entry.BaseURL))
		}
		if enc := entry.OptionString("audio_encoding"); enc != "" {
			opts = append(opts, google.WithAudioEncoding(enc))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, google.WithLanguageFilter(lang))
		}
		return google.New(ctx, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptionString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.OptionString("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("wsbridge", func(entry config.ProviderEntry) (chat.Source, error) {
		var opts []wsbridge.Option
		if platform := entry.OptionString("platform"); platform != "" {
			opts = append(opts, wsbridge.WithPlatform(platform))
		}
		if entry.APIKey != "" {
			opts = append(opts, wsbridge.WithHeader("Authorization", "Bearer "+entry.APIKey))
		}
		return wsbridge.New(entry.BaseURL, opts...)
	})

	reg.RegisterChat("twitch", func(entry config.ProviderEntry) (chat.Source, error) {
		var opts []twitch.Option
		if user := entry.OptionString("username"); user != "" && entry.APIKey != "" {
			opts = append(opts, twitch.WithCredentials(user, entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, twitch.WithServer(entry.BaseURL, !entry.OptionBool("insecure")))
		}
		return twitch.New(opts...), nil
	})

	reg.RegisterChat("discord", func(entry config.ProviderEntry) (chat.Source, error) {
		return discord.New(entry.APIKey, discord.WithIncludeBots(entry.OptionBool("include_bots")))
	})

	// ── Players ───────────────────────────────────────────────────────────────

	reg.RegisterPlayer("auto", func(config.ProviderEntry) (audio.Player, error) {
		return audio.DetectPlayer()
	})

	reg.RegisterPlayer("exec", func(entry config.ProviderEntry) (audio.Player, error) {
		return audio.NewExecPlayer(entry.OptionString("command"))
	})

	for _, kind := range []string{"tts", "chat", "player"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. A fallback TTS provider that fails to build is skipped.
func buildProviders(ctx context.Context, cfg *config.Config) (*app.Providers, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg, cfg)
	ps := &app.Providers{}

	p := cfg.Providers
	primary, err := reg.CreateTTS(p.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", p.TTS.Name, err)
	}
	ps.TTS = app.NamedTTS{Name: p.TTS.Name, Provider: primary}
	slog.Info("provider created", "kind", "tts", "name", p.TTS.Name)

	for _, entry := range p.TTSFallbacks {
		fb, err := reg.CreateTTS(entry)
		if err != nil {
			slog.Warn("tts fallback unavailable, skipping", "name", entry.Name, "err", err)
			continue
		}
		ps.TTSFallbacks = append(ps.TTSFallbacks, app.NamedTTS{Name: entry.Name, Provider: fb})
		slog.Info("provider created", "kind", "tts_fallback", "name", entry.Name)
	}

	if ps.Chat, err = reg.CreateChat(p.Chat); err != nil {
		return nil, fmt.Errorf("create chat source %q: %w", p.Chat.Name, err)
	}
	slog.Info("provider created", "kind", "chat", "name", p.Chat.Name)

	if ps.Player, err = reg.CreatePlayer(p.Player); err != nil {
		return nil, fmt.Errorf("create audio player %q: %w", p.Player.Name, err)
	}
	slog.Info("provider created", "kind", "player", "name", p.Player.Name)

	return ps, nil
}
