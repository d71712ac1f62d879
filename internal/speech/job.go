package speech

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// Kind tags what produced a speech job. It is used as a metric attribute
// and for operator-facing counters.
type Kind string

const (
	KindSpeech  Kind = "speech"
	KindWelcome Kind = "welcome"
	KindHelp    Kind = "help"
	KindJoke    Kind = "joke"
	KindYoMama  Kind = "yo_mama"
	KindTest    Kind = "test"
)

// Job is one line of text to be spoken.
type Job struct {
	ID    uuid.UUID
	Kind  Kind
	Text  string
	Voice tts.VoiceProfile

	// Enqueued is when the job was created.
	Enqueued time.Time
}

// NewJob returns a job with a fresh ID.
func NewJob(kind Kind, text string, voice tts.VoiceProfile) Job {
	return Job{ID: uuid.New(), Kind: kind, Text: text, Voice: voice, Enqueued: time.Now()}
}

// Result reports the outcome of a finished job.
type Result struct {
	Job Job

	// Err is nil on success, otherwise a [*Error].
	Err error

	// Synthesis and Playback are the time spent in each step.
	Synthesis time.Duration
	Playback  time.Duration
}
