// Package mock provides an in-memory [audio.Player] for unit tests.
//
// Player records every clip it is asked to play together with whether the
// file existed at that moment, so tests can assert that the dispatcher hands
// over a real file and removes it afterwards.
//
//	p := &mock.Player{}
//	d := speech.NewDispatcher(provider, p, dir)
//	...
//	if got := p.Calls(); len(got) != 1 || !got[0].Existed { ... }
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/streamtts/pkg/audio"
)

// PlayCall records a single invocation of Play.
type PlayCall struct {
	// Path is the file passed to Play.
	Path string
	// Existed reports whether Path existed when Play was called.
	Existed bool
	// Data holds the file contents read during Play.
	Data []byte
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// PlayFunc, if set, runs after the call is recorded and its result is
	// returned. It runs without the mock's lock held so it may block.
	PlayFunc func(ctx context.Context, path string) error

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall
}

var _ audio.Player = (*Player)(nil)

// Play records the call and returns PlayFunc's result or PlayErr.
func (p *Player) Play(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)

	p.mu.Lock()
	p.PlayCalls = append(p.PlayCalls, PlayCall{Path: path, Existed: err == nil, Data: data})
	fn, playErr := p.PlayFunc, p.PlayErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, path)
	}
	return playErr
}

// Calls returns a copy of the recorded Play calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.PlayCalls...)
}

// Reset clears recorded calls.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = nil
}
