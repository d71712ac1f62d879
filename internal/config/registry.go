package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/streamtts/internal/chat"
	"github.com/MrWong99/streamtts/pkg/audio"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tts    map[string]func(ProviderEntry) (tts.Provider, error)
	chat   map[string]func(ProviderEntry) (chat.Source, error)
	player map[string]func(ProviderEntry) (audio.Player, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts:    make(map[string]func(ProviderEntry) (tts.Provider, error)),
		chat:   make(map[string]func(ProviderEntry) (chat.Source, error)),
		player: make(map[string]func(ProviderEntry) (audio.Player, error)),
	}
}

// RegisterTTS registers a TTS provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterChat registers a chat source factory under name.
func (r *Registry) RegisterChat(name string, factory func(ProviderEntry) (chat.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[name] = factory
}

// RegisterPlayer registers an audio player factory under name.
func (r *Registry) RegisterPlayer(name string, factory func(ProviderEntry) (audio.Player, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.player[name] = factory
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateChat instantiates a chat source using the factory registered under entry.Name.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Source, error) {
	r.mu.RLock()
	factory, ok := r.chat[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: chat/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePlayer instantiates an audio player using the factory registered under entry.Name.
func (r *Registry) CreatePlayer(entry ProviderEntry) (audio.Player, error) {
	r.mu.RLock()
	factory, ok := r.player[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: player/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted names registered for kind ("tts", "chat" or
// "player").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "tts":
		for n := range r.tts {
			names = append(names, n)
		}
	case "chat":
		for n := range r.chat {
			names = append(names, n)
		}
	case "player":
		for n := range r.player {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
