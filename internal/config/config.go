// Package config provides the configuration schema, loader, and provider registry
// for the streamtts chat reader.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Stream      StreamConfig      `yaml:"stream"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Speech      SpeechConfig      `yaml:"speech"`
	Commands    CommandsConfig    `yaml:"commands"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Retry       RetryConfig       `yaml:"retry"`
	Links       LinksConfig       `yaml:"links"`
	Users       UsersConfig       `yaml:"users"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// ServerConfig holds the control API and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP control API (e.g.,
	// "127.0.0.1:8787"). Empty disables the API.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives log output while the terminal panel owns the screen.
	LogFile string `yaml:"log_file"`
}

// StreamConfig selects the stream and how its live status is probed.
type StreamConfig struct {
	// ID is the streamer's username or channel. A leading '@' is ignored.
	ID string `yaml:"id"`

	// LiveURL is the stream page; "%s" is replaced with ID.
	LiveURL string `yaml:"live_url"`

	// ProfileURL is the streamer's profile page; "%s" is replaced with ID.
	ProfileURL string `yaml:"profile_url"`

	// ConnectivityURL is fetched to check internet access.
	ConnectivityURL string `yaml:"connectivity_url"`

	// PlatformURL is fetched to check the platform is reachable.
	PlatformURL string `yaml:"platform_url"`

	// CheckInterval is the live-status polling period.
	CheckInterval time.Duration `yaml:"check_interval"`

	// Indicators are the page markers that mean "live". Matched case-insensitively.
	Indicators []string `yaml:"indicators"`

	// UserAgent is sent with status probes.
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds each probe request.
	Timeout time.Duration `yaml:"timeout"`
}

// ProvidersConfig declares which implementation to use for each pluggable
// component. Each entry selects a named factory registered in the [Registry].
type ProvidersConfig struct {
	// TTS is the primary speech synthesis provider.
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks are tried in order when the primary provider fails.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`

	// Chat is the livestream chat source.
	Chat ProviderEntry `yaml:"chat"`

	// Player plays synthesized clips. "auto" detects an installed player.
	Player ProviderEntry `yaml:"player"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "google", "twitch").
	Name string `yaml:"name"`

	// APIKey is the authentication key or token for the provider if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "tts-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] as a string, or "" when absent.
func (e ProviderEntry) OptionString(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// OptionBool returns Options[key] as a bool.
func (e ProviderEntry) OptionBool(key string) bool {
	b, _ := e.Options[key].(bool)
	return b
}

// OptionInt returns Options[key] as an int, or 0 when absent.
func (e ProviderEntry) OptionInt(key string) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// SpeechConfig configures the speech dispatcher and the voice catalogue.
type SpeechConfig struct {
	// Workers is the number of speech jobs played concurrently.
	Workers int `yaml:"workers"`

	// QueueSize bounds the jobs waiting for a worker.
	QueueSize int `yaml:"queue_size"`

	// TempDir holds the short-lived audio files. Empty uses the OS temp dir.
	TempDir string `yaml:"temp_dir"`

	// Voice is the initial voice, by ID or label.
	Voice string `yaml:"voice"`

	// Voices is the catalogue offered for switching at runtime.
	Voices []VoiceEntry `yaml:"voices"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`

	// PitchShift adjusts pitch in the range [-20, +20]. 0 means default.
	PitchShift float64 `yaml:"pitch_shift"`

	// CloseTimeout bounds how long shutdown waits for queued speech.
	CloseTimeout time.Duration `yaml:"close_timeout"`
}

// VoiceEntry is one voice in the catalogue.
type VoiceEntry struct {
	// Label is the operator-facing name.
	Label string `yaml:"label"`

	// ID is the provider voice name.
	ID string `yaml:"id"`
}

// CommandsConfig locates the joke word lists.
type CommandsConfig struct {
	JokesFile  string `yaml:"jokes_file"`
	YoMamaFile string `yaml:"yo_mama_file"`
}

// DedupConfig configures duplicate suppression.
type DedupConfig struct {
	// ResetInterval is how long a key is remembered before the cache is
	// cleared wholesale.
	ResetInterval time.Duration `yaml:"reset_interval"`
}

// RetryConfig holds the connection backoff parameters.
type RetryConfig struct {
	BaseCooldown    time.Duration `yaml:"base_cooldown"`
	MaxCooldown     time.Duration `yaml:"max_cooldown"`
	Multiplier      float64       `yaml:"multiplier"`
	BlockedCooldown time.Duration `yaml:"blocked_cooldown"`
	MaxAttempts     int           `yaml:"max_attempts"`
}

// LinksConfig locates the links file shown in the panel.
type LinksConfig struct {
	File string `yaml:"file"`
}

// UsersConfig configures joined-user exports.
type UsersConfig struct {
	ExportDir   string `yaml:"export_dir"`
	ExportTitle string `yaml:"export_title"`
}

// CredentialsConfig configures credential discovery for Google TTS.
type CredentialsConfig struct {
	// SearchDirs are scanned for a service-account *.json file when neither
	// providers.tts.options.credentials_file nor GOOGLE_APPLICATION_CREDENTIALS
	// is set.
	SearchDirs []string `yaml:"search_dirs"`
}

// DefaultRelayURL is the websocket chat relay used when none is configured.
const DefaultRelayURL = "ws://127.0.0.1:21213/live/%s"

// DefaultVoices is the built-in Google voice catalogue.
var DefaultVoices = []VoiceEntry{
	{Label: "Google Home Male", ID: "en-US-Studio-M"},
	{Label: "Google Home Female", ID: "en-US-Studio-O"},
	{Label: "Assistant Male", ID: "en-US-Polyglot-1"},
	{Label: "Assistant Female", ID: "en-US-Neural2-F"},
	{Label: "British Female", ID: "en-GB-Neural2-A"},
	{Label: "British Male", ID: "en-GB-Neural2-B"},
	{Label: "Conversational Male", ID: "en-US-Neural2-D"},
	{Label: "Conversational Female", ID: "en-US-Neural2-G"},
	{Label: "Natural Male", ID: "en-US-Neural2-A"},
	{Label: "Professional Male", ID: "en-US-Neural2-I"},
	{Label: "Warm Male", ID: "en-US-Neural2-J"},
	{Label: "Premium Female", ID: "en-US-Neural2-H"},
	{Label: "Dramatic Female", ID: "en-US-Neural2-C"},
	{Label: "Posh British Female", ID: "en-GB-Neural2-C"},
	{Label: "Professional British Male", ID: "en-GB-Neural2-D"},
	{Label: "Aussie Female", ID: "en-AU-Neural2-A"},
	{Label: "Aussie Male", ID: "en-AU-Neural2-B"},
	{Label: "Casual Aussie Female", ID: "en-AU-Neural2-C"},
	{Label: "Outback Aussie Male", ID: "en-AU-Neural2-D"},
	{Label: "Indian Female A", ID: "en-IN-Neural2-A"},
	{Label: "Indian Male B", ID: "en-IN-Neural2-B"},
	{Label: "Indian Voice C", ID: "en-IN-Neural2-C"},
	{Label: "Indian Voice D", ID: "en-IN-Neural2-D"},
}

// ApplyDefaults fills unset fields with their defaults. Negative values that
// [Validate] rejects are left in place.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFile == "" {
		s.LogFile = "streamtts.log"
	}

	st := &cfg.Stream
	if st.LiveURL == "" {
		st.LiveURL = "https://www.tiktok.com/@%s/live"
	}
	if st.ProfileURL == "" {
		st.ProfileURL = "https://www.tiktok.com/@%s"
	}
	if st.ConnectivityURL == "" {
		st.ConnectivityURL = "https://www.google.com"
	}
	if st.PlatformURL == "" {
		st.PlatformURL = "https://www.tiktok.com"
	}
	if st.CheckInterval == 0 {
		st.CheckInterval = 5 * time.Second
	}
	if st.Timeout <= 0 {
		st.Timeout = 10 * time.Second
	}

	p := &cfg.Providers
	if p.TTS.Name == "" {
		p.TTS.Name = "google"
	}
	if p.Chat.Name == "" {
		p.Chat.Name = "wsbridge"
	}
	if p.Chat.Name == "wsbridge" && p.Chat.BaseURL == "" {
		p.Chat.BaseURL = DefaultRelayURL
	}
	if p.Player.Name == "" {
		p.Player.Name = "auto"
	}

	sp := &cfg.Speech
	if sp.Workers == 0 {
		sp.Workers = 1
	}
	if sp.QueueSize == 0 {
		sp.QueueSize = 32
	}
	if len(sp.Voices) == 0 && p.TTS.Name == "google" {
		sp.Voices = append([]VoiceEntry(nil), DefaultVoices...)
	}
	if sp.CloseTimeout <= 0 {
		sp.CloseTimeout = 30 * time.Second
	}

	if cfg.Commands.JokesFile == "" {
		cfg.Commands.JokesFile = "jokes/random/random.txt"
	}
	if cfg.Commands.YoMamaFile == "" {
		cfg.Commands.YoMamaFile = "jokes/yo_mama/yo_mama.txt"
	}
	if cfg.Dedup.ResetInterval <= 0 {
		cfg.Dedup.ResetInterval = 300 * time.Second
	}
	if cfg.Links.File == "" {
		cfg.Links.File = "links/links.txt"
	}
	if cfg.Users.ExportDir == "" {
		cfg.Users.ExportDir = "."
	}
	if cfg.Users.ExportTitle == "" {
		cfg.Users.ExportTitle = "Users Joined"
	}
	if len(cfg.Credentials.SearchDirs) == 0 {
		cfg.Credentials.SearchDirs = []string{"key", "credentials"}
	}
}
