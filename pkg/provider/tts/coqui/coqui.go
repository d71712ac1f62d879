// Package coqui provides a TTS provider backed by a locally running Coqui TTS
// server. Two server APIs are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with query
//     parameters; the voice catalogue comes from GET /details.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is
//     POST /tts_to_audio/ with a JSON body; the voice catalogue comes from
//     GET /studio_speakers.
//
// Both servers answer with a complete WAV file, which is returned unchanged
// after its header has been validated.
//
//	p, _ := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	clip, err := p.Synthesize(ctx, "alice says hi", tts.VoiceProfile{ID: "p225"})
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/streamtts/pkg/audio"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// maxClipBytes bounds a single WAV response.
	maxClipBytes = 32 << 20
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server (e.g. "en", "de").
// A voice profile with its own LanguageCode overrides it per request.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server. It is safe
// for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
}

// New creates a Provider that targets the server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// studioSpeakersResponse maps voice names to speaker data. Only the keys are used.
type studioSpeakersResponse map[string]json.RawMessage

// detailsResponse is the body of GET /details (standard mode). Speakers is
// empty for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize renders text to a WAV clip.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	var req *http.Request
	var err error
	if p.apiMode == APIModeXTTS {
		req, err = p.xttsRequest(ctx, text, voice)
	} else {
		req, err = p.standardRequest(ctx, text, voice)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	if _, err := audio.ParseWAV(wav); err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return &tts.Audio{Data: wav, Format: tts.FormatWAV}, nil
}

func (p *Provider) xttsRequest(ctx context.Context, text string, voice tts.VoiceProfile) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{
		Text:       text,
		SpeakerWav: voice.ID,
		Language:   p.languageFor(voice),
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, text string, voice tts.VoiceProfile) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", text)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if lang := p.languageFor(voice); lang != "" {
		params.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// languageFor returns the short language code Coqui expects ("en", not "en-US").
func (p *Provider) languageFor(voice tts.VoiceProfile) string {
	lang := voice.LanguageCode
	if lang == "" {
		return p.language
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

// ListVoices retrieves the voices offered by the server. In standard mode a
// single-speaker model yields one profile named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeXTTS {
		var raw studioSpeakersResponse
		if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		sort.Strings(names)
		return profiles(names, map[string]string{"type": "studio"}), nil
	}

	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}
	if len(details.Speakers) > 0 {
		speakers := append([]string(nil), details.Speakers...)
		sort.Strings(speakers)
		return profiles(speakers, map[string]string{"type": "speaker", "model_name": details.ModelName}), nil
	}
	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return profiles([]string{name}, map[string]string{"type": "single-speaker", "model_name": name}), nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

func profiles(names []string, meta map[string]string) []tts.VoiceProfile {
	out := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		m := make(map[string]string, len(meta))
		for k, v := range meta {
			m[k] = v
		}
		out = append(out, tts.VoiceProfile{ID: name, Name: name, Provider: "coqui", Metadata: m})
	}
	return out
}
