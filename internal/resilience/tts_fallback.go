package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// ttsBackend pairs a provider with the function that adapts the caller's
// voice to it.
type ttsBackend struct {
	provider tts.Provider
	mapVoice func(tts.VoiceProfile) tts.VoiceProfile
}

// TTSFallback implements [tts.Provider] with failover across several
// backends, each behind its own circuit breaker.
//
// Voice IDs are provider specific, so a fallback backend receives the voice
// converted by the function given to [TTSFallback.AddFallback]. Without one
// it gets a profile that keeps only the language and speed, letting it pick
// its own default voice.
type TTSFallback struct {
	group *FallbackGroup[ttsBackend]

	mu   sync.RWMutex
	last string
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend. Empty text is returned as an error without failing over.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool { return errors.Is(err, tts.ErrEmptyText) }
	}
	isFailure := cfg.CircuitBreaker.IsFailure
	if isFailure == nil {
		isFailure = countsAsFailure
	}
	cfg.CircuitBreaker.IsFailure = func(err error) bool {
		return !errors.Is(err, tts.ErrEmptyText) && isFailure(err)
	}
	return &TTSFallback{
		group: NewFallbackGroup(ttsBackend{provider: primary}, primaryName, cfg),
		last:  primaryName,
	}
}

// AddFallback registers an additional backend. mapVoice converts the
// caller's voice for this backend; nil keeps only language and speed.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider, mapVoice func(tts.VoiceProfile) tts.VoiceProfile) {
	if mapVoice == nil {
		mapVoice = languageOnly
	}
	f.group.AddFallback(name, ttsBackend{provider: provider, mapVoice: mapVoice})
}

func languageOnly(v tts.VoiceProfile) tts.VoiceProfile {
	return tts.VoiceProfile{LanguageCode: v.ResolveLanguage(), SpeedFactor: v.SpeedFactor}
}

// Synthesize renders text with the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Audio, error) {
	clip, name, err := executeNamed(f.group, func(b ttsBackend) (*tts.Audio, error) {
		v := voice
		if b.mapVoice != nil {
			v = b.mapVoice(voice)
		}
		return b.provider.Synthesize(ctx, text, v)
	})
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.last = name
	f.mu.Unlock()
	return clip, nil
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(b ttsBackend) ([]tts.VoiceProfile, error) {
		return b.provider.ListVoices(ctx)
	})
}

// Last returns the name of the backend that served the most recent
// successful Synthesize call.
func (f *TTSFallback) Last() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

// Status returns each backend's breaker state.
func (f *TTSFallback) Status() []EntryStatus { return f.group.Status() }
