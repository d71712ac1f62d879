package speech

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrSynthesis matches any [*Error] raised while producing audio.
	ErrSynthesis = errors.New("speech: synthesis failed")

	// ErrPlayback matches any [*Error] raised while writing or playing audio.
	ErrPlayback = errors.New("speech: playback failed")

	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("speech: queue full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("speech: dispatcher closed")
)

// Stage names the step of a speech job that failed.
type Stage string

const (
	StageSynthesize Stage = "synthesize"
	StageWrite      Stage = "write"
	StagePlay       Stage = "play"
)

// Error is a failed speech job.
type Error struct {
	Stage Stage
	JobID uuid.UUID
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("speech: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the stage families ErrSynthesis and ErrPlayback.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSynthesis:
		return e.Stage == StageSynthesize
	case ErrPlayback:
		return e.Stage == StageWrite || e.Stage == StagePlay
	}
	return false
}

// panicError wraps a recovered panic value.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
