// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (Google Cloud TTS, OpenAI,
// ElevenLabs or a local Coqui server) and turns one complete chat line into
// one encoded audio clip. Clips are short, so synthesis is request/response
// rather than streaming: the caller writes the clip to a file and hands it to
// an audio player.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by providers when asked to synthesise blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. The speech dispatcher runs
// several workers, each of which may call Synthesize at the same time.
type Provider interface {
	// Synthesize renders text with the given voice and returns the encoded
	// clip. The returned Audio always has a non-empty Data slice on success.
	//
	// Returns an error if the provider rejects the request, cannot be reached,
	// or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (*Audio, error)

	// ListVoices returns the voices available from this provider. The list
	// reflects the provider's current catalogue and may change between calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
