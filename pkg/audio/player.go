// Package audio plays synthesized clips on the local output device and holds
// the small amount of WAV handling the TTS providers share.
//
// [Player] is the narrow playback abstraction used by the speech dispatcher:
// Play blocks until the clip has finished or ctx is cancelled. [ExecPlayer]
// implements it by running a command-line player (ffplay, mpv, afplay,
// paplay, ...) once per clip.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Player plays a single audio file to completion.
//
// Implementations must be safe for concurrent use; the dispatcher may call
// Play from several workers.
type Player interface {
	Play(ctx context.Context, path string) error
}

// ErrNoPlayer is returned by [DetectPlayer] when no supported player is
// installed.
var ErrNoPlayer = errors.New("audio: no supported audio player found on PATH")

// knownPlayers maps binaries to the arguments that make them play one file
// headless and exit. "{file}" is replaced with the clip path.
var knownPlayers = []struct {
	bin  string
	args []string
}{
	{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "error", "{file}"}},
	{"mpv", []string{"--no-video", "--really-quiet", "{file}"}},
	{"afplay", []string{"{file}"}},
	{"paplay", []string{"{file}"}},
	{"aplay", []string{"-q", "{file}"}},
}

// ExecPlayer plays clips by running an external command.
type ExecPlayer struct {
	bin  string
	args []string
	env  []string

	// command is replaced in tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

var _ Player = (*ExecPlayer)(nil)

// PlayerOption configures an [ExecPlayer].
type PlayerOption func(*ExecPlayer)

// WithEnv appends "KEY=value" entries to the player's environment.
func WithEnv(env ...string) PlayerOption {
	return func(p *ExecPlayer) {
		p.env = append(p.env, env...)
	}
}

// NewExecPlayer returns a player that runs commandLine for every clip.
// commandLine is split on whitespace; a "{file}" token is replaced with the
// clip path, or the path is appended when no such token exists.
func NewExecPlayer(commandLine string, opts ...PlayerOption) (*ExecPlayer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("audio: player command must not be empty")
	}
	args := fields[1:]
	if !containsFileToken(args) {
		args = append(args, "{file}")
	}
	p := &ExecPlayer{bin: fields[0], args: args, command: exec.CommandContext}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// DetectPlayer returns an [ExecPlayer] for the first known player found on
// PATH.
func DetectPlayer(opts ...PlayerOption) (*ExecPlayer, error) {
	return detectPlayer(exec.LookPath, opts...)
}

func detectPlayer(lookPath func(string) (string, error), opts ...PlayerOption) (*ExecPlayer, error) {
	for _, kp := range knownPlayers {
		path, err := lookPath(kp.bin)
		if err != nil {
			continue
		}
		p := &ExecPlayer{bin: path, args: append([]string(nil), kp.args...), command: exec.CommandContext}
		for _, o := range opts {
			o(p)
		}
		return p, nil
	}
	return nil, ErrNoPlayer
}

// Command returns the configured binary and argument template.
func (p *ExecPlayer) Command() (string, []string) {
	return p.bin, append([]string(nil), p.args...)
}

// Play runs the player on path and waits for it to exit. Cancelling ctx kills
// the player process.
func (p *ExecPlayer) Play(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("audio: play: empty path")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio: play: %w", err)
	}
	args := make([]string, len(p.args))
	for i, a := range p.args {
		args[i] = strings.ReplaceAll(a, "{file}", path)
	}

	cmd := p.command(ctx, p.bin, args...)
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("audio: play %s: %w", p.bin, ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("audio: play %s: %w: %s", p.bin, err, msg)
		}
		return fmt.Errorf("audio: play %s: %w", p.bin, err)
	}
	return nil
}

func containsFileToken(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, "{file}") {
			return true
		}
	}
	return false
}
