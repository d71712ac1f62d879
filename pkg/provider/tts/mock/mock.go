// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled clips to the speech dispatcher and to
// verify which text and VoiceProfile reached the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeResult: &tts.Audio{Data: []byte("mp3"), Format: tts.FormatMP3},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "en-US-Studio-M"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the VoiceProfile passed to Synthesize.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeResult is returned by Synthesize. When nil, a one-byte MP3
	// clip is returned.
	SynthesizeResult *tts.Audio

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// SynthesizeFunc, if set, replaces the canned response entirely. It runs
	// without the mock's lock held so it may block.
	SynthesizeFunc func(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Audio, error)

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Audio, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	fn := p.SynthesizeFunc
	res, err := p.SynthesizeResult, p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &tts.Audio{Data: []byte{0xff}, Format: tts.FormatMP3}, nil
	}
	out := *res
	out.Data = append([]byte(nil), res.Data...)
	return &out, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.SynthesizeCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
