// Package mock provides a scripted [chat.Source] for tests.
//
// Each call to Connect consumes the next entry of Results. An entry with a
// non-nil Err fails the attempt; otherwise a fresh [chat.Pipe] is returned and
// also appended to Sessions so the test can push events into it.
//
//	src := &mock.Source{Results: []mock.Result{{Err: chat.ErrRateLimited}, {}}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/streamtts/internal/chat"
)

// Result scripts the outcome of one Connect call.
type Result struct {
	Err error
}

// ConnectCall records a single Connect invocation.
type ConnectCall struct {
	StreamID string
}

// Source is a mock implementation of [chat.Source].
type Source struct {
	mu sync.Mutex

	// PlatformName is returned by Name. Defaults to "mock".
	PlatformName string

	// Results are consumed in order. When exhausted, Fallback is used.
	Results []Result

	// Fallback is the outcome once Results is exhausted.
	Fallback Result

	// ConnectCalls records every call to Connect.
	ConnectCalls []ConnectCall

	// Sessions holds every successfully created session in order.
	Sessions []*chat.Pipe
}

var _ chat.Source = (*Source)(nil)

// Name implements [chat.Source].
func (s *Source) Name() string {
	if s.PlatformName == "" {
		return "mock"
	}
	return s.PlatformName
}

// Connect implements [chat.Source].
func (s *Source) Connect(ctx context.Context, streamID string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ConnectCalls = append(s.ConnectCalls, ConnectCall{StreamID: streamID})
	res := s.Fallback
	if len(s.Results) > 0 {
		res = s.Results[0]
		s.Results = s.Results[1:]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	p := chat.NewPipe(16, nil)
	s.Sessions = append(s.Sessions, p)
	return p, nil
}

// Calls returns the number of Connect calls so far.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ConnectCalls)
}

// LastSession returns the most recent session, or nil.
func (s *Source) LastSession() *chat.Pipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sessions) == 0 {
		return nil
	}
	return s.Sessions[len(s.Sessions)-1]
}
