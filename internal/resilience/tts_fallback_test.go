package resilience

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/MrWong99/streamtts/pkg/provider/tts"
	ttsmock "github.com/MrWong99/streamtts/pkg/provider/tts/mock"
)

var auMale = tts.VoiceProfile{ID: "en-AU-Standard-B", LanguageCode: "en-AU", SpeedFactor: 1.2}

func TestTTSFallback_PrimarySucceeds(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeResult: &tts.Audio{Data: []byte("google"), Format: tts.FormatMP3}}
	backup := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "google", FallbackConfig{})
	fb.AddFallback("openai", backup, nil)

	clip, err := fb.Synthesize(context.Background(), "hello", auMale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(clip.Data) != "google" {
		t.Errorf("clip = %q, want google", clip.Data)
	}
	calls := primary.Calls()
	if len(calls) != 1 || !reflect.DeepEqual(calls[0].Voice, auMale) || calls[0].Text != "hello" {
		t.Errorf("primary calls = %+v, want the caller's voice unchanged", calls)
	}
	if len(backup.Calls()) != 0 {
		t.Error("backup was called")
	}
	if fb.Last() != "google" {
		t.Errorf("Last() = %q, want google", fb.Last())
	}
}

func TestTTSFallback_FailoverMapsVoice(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
	openai := &ttsmock.Provider{}
	eleven := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "google", FallbackConfig{})
	fb.AddFallback("openai", openai, nil)
	fb.AddFallback("elevenlabs", eleven, func(tts.VoiceProfile) tts.VoiceProfile {
		return tts.VoiceProfile{ID: "rachel"}
	})

	if _, err := fb.Synthesize(context.Background(), "hi", auMale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := openai.Calls()
	if len(calls) != 1 {
		t.Fatalf("openai calls = %d, want 1", len(calls))
	}
	want := tts.VoiceProfile{LanguageCode: "en-AU", SpeedFactor: 1.2}
	if !reflect.DeepEqual(calls[0].Voice, want) {
		t.Errorf("fallback voice = %+v, want %+v", calls[0].Voice, want)
	}
	if fb.Last() != "openai" {
		t.Errorf("Last() = %q, want openai", fb.Last())
	}

	openai.SynthesizeErr = errors.New("down")
	if _, err := fb.Synthesize(context.Background(), "hi", auMale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := eleven.Calls(); len(got) != 1 || got[0].Voice.ID != "rachel" {
		t.Errorf("elevenlabs calls = %+v, want the mapped voice", got)
	}
	if fb.Last() != "elevenlabs" {
		t.Errorf("Last() = %q, want elevenlabs", fb.Last())
	}
}

func TestTTSFallback_EmptyTextDoesNotFailOver(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: fmt.Errorf("google: %w", tts.ErrEmptyText)}
	backup := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "google", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}})
	fb.AddFallback("openai", backup, nil)

	for range 2 {
		_, err := fb.Synthesize(context.Background(), "   ", auMale)
		if !errors.Is(err, tts.ErrEmptyText) {
			t.Fatalf("got %v, want ErrEmptyText", err)
		}
	}
	if len(backup.Calls()) != 0 {
		t.Error("empty text was sent to the fallback")
	}
	if st := fb.Status(); st[0].State != "closed" {
		t.Errorf("primary breaker = %s, want closed", st[0].State)
	}
}

func TestTTSFallback_AllFailed(t *testing.T) {
	t.Parallel()
	fb := NewTTSFallback(&ttsmock.Provider{SynthesizeErr: errTest}, "google", FallbackConfig{})
	fb.AddFallback("openai", &ttsmock.Provider{SynthesizeErr: errTest}, nil)

	_, err := fb.Synthesize(context.Background(), "hello", auMale)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("got %v, want ErrAllFailed", err)
	}
	if fb.Last() != "google" {
		t.Errorf("Last() = %q, want it unchanged", fb.Last())
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{ListVoicesErr: errTest}
	backup := &ttsmock.Provider{ListVoicesResult: []tts.VoiceProfile{{ID: "alloy"}, {ID: "nova"}}}
	fb := NewTTSFallback(primary, "google", FallbackConfig{})
	fb.AddFallback("openai", backup, nil)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "alloy" {
		t.Errorf("voices = %+v", voices)
	}
}
