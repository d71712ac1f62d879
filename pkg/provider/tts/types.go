package tts

import "strings"

// VoiceProfile selects a voice for synthesis.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "en-US-Studio-M").
	ID string

	// Name is the human-readable label shown to the operator.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// LanguageCode is the BCP-47 code to synthesise in. When empty, providers
	// that need one derive it with [LanguageCode].
	LanguageCode string

	// SpeedFactor adjusts speaking rate (0.25–4.0, 0 or 1.0 = default).
	SpeedFactor float64

	// PitchShift adjusts pitch in semitones (-20 to +20, 0 = default).
	PitchShift float64

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Format is the container/encoding of a synthesised clip.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatOGG Format = "ogg"
)

// Ext returns the file extension for f including the leading dot. Unknown
// formats fall back to ".audio".
func (f Format) Ext() string {
	switch f {
	case FormatMP3, FormatWAV, FormatOGG:
		return "." + string(f)
	default:
		return ".audio"
	}
}

// Audio is one synthesised clip.
type Audio struct {
	Data   []byte
	Format Format
}

// LanguageCode derives the synthesis language from a voice name. Names
// containing "en-AU", "en-GB" or "en-IN" map to that code; everything else is
// treated as "en-US".
func LanguageCode(voiceName string) string {
	for _, code := range []string{"en-AU", "en-GB", "en-IN"} {
		if strings.Contains(voiceName, code) {
			return code
		}
	}
	return "en-US"
}

// ResolveLanguage returns v.LanguageCode, falling back to [LanguageCode] of v.ID.
func (v VoiceProfile) ResolveLanguage() string {
	if v.LanguageCode != "" {
		return v.LanguageCode
	}
	return LanguageCode(v.ID)
}
