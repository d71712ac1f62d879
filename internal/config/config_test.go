package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/streamtts/internal/chat"
	chatmock "github.com/MrWong99/streamtts/internal/chat/mock"
	"github.com/MrWong99/streamtts/internal/config"
	"github.com/MrWong99/streamtts/pkg/audio"
	audiomock "github.com/MrWong99/streamtts/pkg/audio/mock"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
	ttsmock "github.com/MrWong99/streamtts/pkg/provider/tts/mock"
)

const fullYAML = `
server:
  listen_addr: "127.0.0.1:8787"
  log_level: debug
stream:
  id: "@somestreamer"
  check_interval: 10s
  indicators: [LIVE, ROOM_ID]
providers:
  tts:
    name: openai
    api_key: sk-test
    model: tts-1
    options:
      format: mp3
  tts_fallbacks:
    - name: google
  chat:
    name: twitch
    options:
      username: mybot
  player:
    name: exec
    options:
      command: "mpv --no-video"
speech:
  workers: 2
  queue_size: 8
  voice: alloy
  voices:
    - {label: Alloy, id: alloy}
    - {label: Nova, id: nova}
commands:
  jokes_file: j.txt
dedup:
  reset_interval: 2m
retry:
  base_cooldown: 30s
  max_cooldown: 4m
  multiplier: 2
  max_attempts: 5
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug || cfg.Server.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Stream.ID != "@somestreamer" || cfg.Stream.CheckInterval != 10*time.Second {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	if cfg.Providers.TTS.Name != "openai" || cfg.Providers.TTS.OptionString("format") != "mp3" {
		t.Errorf("tts = %+v", cfg.Providers.TTS)
	}
	if len(cfg.Providers.TTSFallbacks) != 1 || cfg.Providers.TTSFallbacks[0].Name != "google" {
		t.Errorf("fallbacks = %+v", cfg.Providers.TTSFallbacks)
	}
	if cfg.Speech.Workers != 2 || len(cfg.Speech.Voices) != 2 {
		t.Errorf("speech = %+v", cfg.Speech)
	}
	if cfg.Dedup.ResetInterval != 2*time.Minute {
		t.Errorf("dedup = %v", cfg.Dedup.ResetInterval)
	}
	if cfg.Retry.Multiplier != 2 || cfg.Retry.MaxAttempts != 5 {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	// Unset fields still receive defaults.
	if cfg.Commands.YoMamaFile != "jokes/yo_mama/yo_mama.txt" || cfg.Links.File != "links/links.txt" {
		t.Errorf("defaults not applied: %+v %+v", cfg.Commands, cfg.Links)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.TTS.Name != "google" || cfg.Providers.Chat.Name != "wsbridge" || cfg.Providers.Player.Name != "auto" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Providers.Chat.BaseURL != config.DefaultRelayURL {
		t.Errorf("relay url = %q", cfg.Providers.Chat.BaseURL)
	}
	if cfg.Speech.Workers != 1 || cfg.Speech.QueueSize != 32 {
		t.Errorf("speech = %+v", cfg.Speech)
	}
	if len(cfg.Speech.Voices) != len(config.DefaultVoices) || cfg.Speech.Voices[0].ID != "en-US-Studio-M" {
		t.Errorf("voices = %d, first %+v", len(cfg.Speech.Voices), cfg.Speech.Voices)
	}
	if cfg.Dedup.ResetInterval != 300*time.Second || cfg.Stream.CheckInterval != 5*time.Second {
		t.Errorf("intervals = %v / %v", cfg.Dedup.ResetInterval, cfg.Stream.CheckInterval)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("STREAMTTS_TEST_KEY", "sk-from-env")
	yaml := `
providers:
  tts:
    name: openai
    api_key: ${STREAMTTS_TEST_KEY}
    base_url: ${STREAMTTS_TEST_UNSET:-https://example.test/v1}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.TTS.BaseURL != "https://example.test/v1" {
		t.Errorf("base_url = %q, want default", cfg.Providers.TTS.BaseURL)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  colour: blue\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STREAMTTS_ENV_A=alpha\nSTREAMTTS_ENV_B=beta\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STREAMTTS_ENV_B", "preset")
	t.Cleanup(func() { os.Unsetenv("STREAMTTS_ENV_A") })

	if err := config.LoadEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("STREAMTTS_ENV_A"); got != "alpha" {
		t.Errorf("A = %q, want alpha", got)
	}
	if got := os.Getenv("STREAMTTS_ENV_B"); got != "preset" {
		t.Errorf("B = %q, want existing value kept", got)
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"s": "x", "b": true, "i": 3, "f": 4.0, "n": nil}}
	if e.OptionString("s") != "x" || e.OptionString("b") != "" || e.OptionString("n") != "" {
		t.Error("OptionString mismatch")
	}
	if !e.OptionBool("b") || e.OptionBool("s") {
		t.Error("OptionBool mismatch")
	}
	if e.OptionInt("i") != 3 || e.OptionInt("f") != 4 || e.OptionInt("missing") != 0 {
		t.Error("OptionInt mismatch")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterTTS("mock", func(e config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
	reg.RegisterChat("mock", func(e config.ProviderEntry) (chat.Source, error) {
		return &chatmock.Source{PlatformName: e.OptionString("platform")}, nil
	})
	reg.RegisterPlayer("mock", func(config.ProviderEntry) (audio.Player, error) {
		return &audiomock.Player{}, nil
	})

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	src, err := reg.CreateChat(config.ProviderEntry{Name: "mock", Options: map[string]any{"platform": "tiktok"}})
	if err != nil || src.Name() != "tiktok" {
		t.Errorf("CreateChat = %v, %v", src, err)
	}
	if _, err := reg.CreatePlayer(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreatePlayer: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown tts error = %v", err)
	}
	if _, err := reg.CreateChat(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown chat error = %v", err)
	}
	if names := reg.Names("tts"); len(names) != 1 || names[0] != "mock" {
		t.Errorf("Names(tts) = %v", names)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load(example.yaml): %v", err)
	}
	if cfg.Providers.TTSFallbacks[0].APIKey != "sk-test" {
		t.Errorf("fallback api key = %q, want the expanded env value", cfg.Providers.TTSFallbacks[0].APIKey)
	}
	if cfg.Speech.Voice != "Google Home Male" || len(cfg.Speech.Voices) != len(config.DefaultVoices) {
		t.Errorf("speech = %+v", cfg.Speech)
	}
}
