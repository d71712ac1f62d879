package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":    {"google", "elevenlabs", "openai", "coqui"},
	"chat":   {"wsbridge", "twitch", "discord"},
	"player": {"auto", "exec"},
}

// LoadEnv loads KEY=VALUE pairs from each existing file into the process
// environment. Variables already set are not overwritten and missing files
// are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	expanded := os.Expand(string(data), expandVar)
	if strings.TrimSpace(expanded) != "" {
		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandVar resolves ${VAR} and ${VAR:-default}.
func expandVar(name string) string {
	if key, def, ok := strings.Cut(name, ":-"); ok {
		if v, set := os.LookupEnv(key); set && v != "" {
			return v
		}
		return def
	}
	return os.Getenv(name)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("tts", cfg.Providers.TTS.Name)
	for _, fb := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", fb.Name)
	}
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("player", cfg.Providers.Player.Name)

	if cfg.Stream.ID == "" {
		slog.Warn("stream.id is empty; set it before starting the bot")
	}
	if cfg.Stream.CheckInterval < 0 {
		errs = append(errs, fmt.Errorf("stream.check_interval %s must not be negative", cfg.Stream.CheckInterval))
	}
	if cfg.Stream.LiveURL != "" && !strings.Contains(cfg.Stream.LiveURL, "%s") {
		slog.Warn("stream.live_url has no %s placeholder; the stream id will not be substituted", "url", cfg.Stream.LiveURL)
	}

	sp := cfg.Speech
	if sp.Workers < 0 {
		errs = append(errs, fmt.Errorf("speech.workers %d must not be negative", sp.Workers))
	}
	if sp.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("speech.queue_size %d must not be negative", sp.QueueSize))
	}
	if sp.SpeedFactor != 0 && (sp.SpeedFactor < 0.5 || sp.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("speech.speed_factor %.2f is out of range [0.5, 2.0]", sp.SpeedFactor))
	}
	if sp.PitchShift < -20 || sp.PitchShift > 20 {
		errs = append(errs, fmt.Errorf("speech.pitch_shift %.2f is out of range [-20, 20]", sp.PitchShift))
	}
	seen := make(map[string]int, len(sp.Voices))
	for i, v := range sp.Voices {
		prefix := fmt.Sprintf("speech.voices[%d]", i)
		if v.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := seen[v.Label]; ok && v.Label != "" {
			errs = append(errs, fmt.Errorf("%s.label %q is a duplicate of speech.voices[%d]", prefix, v.Label, prev))
		}
		seen[v.Label] = i
	}
	if sp.Voice != "" && len(sp.Voices) > 0 && !hasVoice(sp.Voices, sp.Voice) {
		errs = append(errs, fmt.Errorf("speech.voice %q is not in speech.voices", sp.Voice))
	}

	r := cfg.Retry
	if r.Multiplier != 0 && r.Multiplier <= 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier %.2f must be greater than 1", r.Multiplier))
	}
	if r.MaxCooldown > 0 && r.BaseCooldown > r.MaxCooldown {
		errs = append(errs, fmt.Errorf("retry.base_cooldown %s exceeds retry.max_cooldown %s", r.BaseCooldown, r.MaxCooldown))
	}
	if r.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d must not be negative", r.MaxAttempts))
	}

	if cfg.Providers.Chat.Name == "discord" && cfg.Providers.Chat.APIKey == "" {
		errs = append(errs, errors.New("providers.chat.api_key (bot token) is required for the discord chat source"))
	}
	if cfg.Providers.Player.Name == "exec" && cfg.Providers.Player.OptionString("command") == "" {
		errs = append(errs, errors.New("providers.player.options.command is required for the exec player"))
	}

	return errors.Join(errs...)
}

func hasVoice(voices []VoiceEntry, nameOrID string) bool {
	return slices.ContainsFunc(voices, func(v VoiceEntry) bool {
		return v.ID == nameOrID || strings.EqualFold(v.Label, nameOrID)
	})
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
