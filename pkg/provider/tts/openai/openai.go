// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = string(oai.SpeechModelTTS1)

// DefaultVoice is used when a request carries no voice ID.
const DefaultVoice = "alloy"

// builtinVoices is the catalogue exposed by the speech endpoint. The API has
// no listing call.
var builtinVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer", "verse"}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs an OpenAI TTS Provider. If model is empty, DefaultModel
// (tts-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Synthesize renders text as MP3 with the requested voice.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	name := voice.ID
	if name == "" {
		name = DefaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(name),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		params.Speed = oai.Float(voice.SpeedFactor)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai tts: empty audio response")
	}
	return &tts.Audio{Data: data, Format: tts.FormatMP3}, nil
}

// ListVoices returns the fixed OpenAI voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	profiles := make([]tts.VoiceProfile, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v,
			Name:     v,
			Provider: "openai",
			Metadata: map[string]string{"model": p.model},
		})
	}
	return profiles, nil
}

// Model returns the speech model in use.
func (p *Provider) Model() string {
	return p.model
}
