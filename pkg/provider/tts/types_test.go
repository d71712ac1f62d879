package tts_test

import (
	"testing"

	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

func TestLanguageCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		voice string
		want  string
	}{
		{"en-AU-Neural2-B", "en-AU"},
		{"en-GB-Wavenet-D", "en-GB"},
		{"en-IN-Standard-C", "en-IN"},
		{"en-US-Studio-M", "en-US"},
		{"de-DE-Wavenet-A", "en-US"},
		{"", "en-US"},
	}
	for _, tt := range tests {
		t.Run(tt.voice, func(t *testing.T) {
			if got := tts.LanguageCode(tt.voice); got != tt.want {
				t.Errorf("LanguageCode(%q) = %q, want %q", tt.voice, got, tt.want)
			}
		})
	}
}

func TestVoiceProfile_ResolveLanguage(t *testing.T) {
	t.Parallel()
	if got := (tts.VoiceProfile{ID: "en-GB-News-K"}).ResolveLanguage(); got != "en-GB" {
		t.Errorf("derived language = %q, want en-GB", got)
	}
	if got := (tts.VoiceProfile{ID: "en-GB-News-K", LanguageCode: "en-US"}).ResolveLanguage(); got != "en-US" {
		t.Errorf("explicit language = %q, want en-US", got)
	}
}

func TestFormat_Ext(t *testing.T) {
	t.Parallel()
	for f, want := range map[tts.Format]string{
		tts.FormatMP3: ".mp3",
		tts.FormatWAV: ".wav",
		tts.FormatOGG: ".ogg",
		"":            ".audio",
	} {
		if got := f.Ext(); got != want {
			t.Errorf("Format(%q).Ext() = %q, want %q", f, got, want)
		}
	}
}
