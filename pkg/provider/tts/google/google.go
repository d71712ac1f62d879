// Package google provides a Google Cloud Text-to-Speech backed TTS provider.
// It implements the tts.Provider interface on top of the REST client in
// google.golang.org/api/texttospeech/v1.
//
// Credentials are resolved by the client library: an explicit service-account
// file passed with [WithCredentialsFile], or Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS) otherwise.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// DefaultVoice is used when a request carries no voice ID.
const DefaultVoice = "en-US-Studio-M"

// Option is a functional option for configuring the Google Provider.
type Option func(*Provider)

// WithCredentialsFile authenticates with a service-account JSON key file.
func WithCredentialsFile(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.clientOpts = append(p.clientOpts, option.WithCredentialsFile(path))
		}
	}
}

// WithEndpoint overrides the API endpoint (used for tests and regional
// endpoints).
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, option.WithEndpoint(url))
	}
}

// WithClientOptions appends raw client options.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// WithAudioEncoding selects the output encoding: "MP3" (default),
// "LINEAR16" (WAV) or "OGG_OPUS".
func WithAudioEncoding(enc string) Option {
	return func(p *Provider) {
		p.encoding = strings.ToUpper(enc)
	}
}

// WithLanguageFilter restricts ListVoices to voices whose language code
// starts with prefix (e.g. "en").
func WithLanguageFilter(prefix string) Option {
	return func(p *Provider) {
		p.languageFilter = prefix
	}
}

// Provider implements tts.Provider backed by Google Cloud Text-to-Speech.
type Provider struct {
	svc            *texttospeech.Service
	clientOpts     []option.ClientOption
	encoding       string
	languageFilter string
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Google Provider and its underlying API client.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{encoding: "MP3", languageFilter: "en"}
	for _, o := range opts {
		o(p)
	}
	if _, ok := formatFor(p.encoding); !ok {
		return nil, fmt.Errorf("google: unsupported audio encoding %q", p.encoding)
	}
	svc, err := texttospeech.NewService(ctx, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	p.svc = svc
	return p, nil
}

// Synthesize renders text with voice. The language code is taken from the
// voice profile or derived from the voice name.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	name := voice.ID
	if name == "" {
		name = DefaultVoice
	}
	voice.ID = name

	cfg := &texttospeech.AudioConfig{AudioEncoding: p.encoding}
	if voice.SpeedFactor > 0 {
		cfg.SpeakingRate = voice.SpeedFactor
	}
	if voice.PitchShift != 0 {
		cfg.Pitch = voice.PitchShift
	}

	resp, err := p.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: voice.ResolveLanguage(),
			Name:         name,
		},
		AudioConfig: cfg,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google: synthesize: %w", err)
	}
	if resp.AudioContent == "" {
		return nil, errors.New("google: synthesize: empty audio content")
	}
	data, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("google: decode audio: %w", err)
	}
	format, _ := formatFor(p.encoding)
	return &tts.Audio{Data: data, Format: format}, nil
}

// ListVoices returns the voices matching the configured language filter.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	call := p.svc.Voices.List().Context(ctx)
	if p.languageFilter != "" {
		call = call.LanguageCode(p.languageFilter)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("google: list voices: %w", err)
	}

	profiles := make([]tts.VoiceProfile, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		if v == nil {
			continue
		}
		lang := ""
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		meta := map[string]string{}
		if v.SsmlGender != "" {
			meta["gender"] = strings.ToLower(v.SsmlGender)
		}
		if v.NaturalSampleRateHertz > 0 {
			meta["sample_rate"] = fmt.Sprint(v.NaturalSampleRateHertz)
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:           v.Name,
			Name:         v.Name,
			Provider:     "google",
			LanguageCode: lang,
			Metadata:     meta,
		})
	}
	return profiles, nil
}

func formatFor(encoding string) (tts.Format, bool) {
	switch encoding {
	case "MP3":
		return tts.FormatMP3, true
	case "LINEAR16":
		return tts.FormatWAV, true
	case "OGG_OPUS":
		return tts.FormatOGG, true
	default:
		return "", false
	}
}
