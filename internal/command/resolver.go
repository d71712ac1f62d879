// Package command turns raw chat comments into the text that should be spoken.
//
// Comments starting with !help, !joke or !yo-mama (matched case-insensitively,
// in that priority order) select a canned response; everything else is read
// out as "{user} says {text}" with emoji replaced by words.
package command

import (
	"errors"
	"math/rand/v2"
	"strings"
)

// Kind classifies what a comment resolved to.
type Kind int

const (
	// KindSpeech reads the comment aloud with the user prefix.
	KindSpeech Kind = iota

	// KindHelp speaks the command overview.
	KindHelp

	// KindJoke speaks a random general joke.
	KindJoke

	// KindYoMama speaks a random yo-mama joke.
	KindYoMama
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSpeech:
		return "speech"
	case KindHelp:
		return "help"
	case KindJoke:
		return "joke"
	case KindYoMama:
		return "yo-mama"
	default:
		return "unknown"
	}
}

// IsJoke reports whether k draws from a word list.
func (k Kind) IsJoke() bool {
	return k == KindJoke || k == KindYoMama
}

// Command prefixes in match priority order.
const (
	PrefixHelp   = "!help"
	PrefixJoke   = "!joke"
	PrefixYoMama = "!yo-mama"
)

// HelpText is spoken in response to !help.
const HelpText = "Available commands: !joke (random joke), !yo-mama (yo mama joke), !help (show this message). Just type normal messages for TTS!"

// Fallback responses used when a word list cannot supply an entry.
const (
	JokesEmpty    = "No jokes found."
	JokesMissing  = "No jokes file found."
	YoMamaEmpty   = "No yo mama jokes found."
	YoMamaMissing = "No yo mama jokes file found."
)

// Resolution is the outcome of resolving one comment.
type Resolution struct {
	Kind Kind
	Text string
}

// Classify returns the kind a comment resolves to without producing any text.
func Classify(text string) Kind {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(lower, PrefixHelp):
		return KindHelp
	case strings.HasPrefix(lower, PrefixJoke):
		return KindJoke
	case strings.HasPrefix(lower, PrefixYoMama):
		return KindYoMama
	default:
		return KindSpeech
	}
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithRand sets the random index source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(r *Resolver) {
		if intn != nil {
			r.intn = intn
		}
	}
}

// WithDemojize replaces the emoji rewriting function.
func WithDemojize(fn func(string) string) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.demojize = fn
		}
	}
}

// Resolver maps comments to spoken text. It is safe for concurrent use.
type Resolver struct {
	jokes    *WordList
	yoMama   *WordList
	intn     func(n int) int
	demojize func(string) string
}

// NewResolver creates a Resolver that draws jokes from the given lists. Either
// list may be nil, which behaves like a missing file.
func NewResolver(jokes, yoMama *WordList, opts ...Option) *Resolver {
	r := &Resolver{
		jokes:  jokes,
		yoMama: yoMama,
		intn:   rand.IntN,
	}
	for _, o := range opts {
		o(r)
	}
	if r.demojize == nil {
		r.demojize = NewDemojizer().Replace
	}
	return r
}

// Resolve returns what should be spoken for text posted by user.
func (r *Resolver) Resolve(user, text string) Resolution {
	text = strings.TrimSpace(text)
	switch kind := Classify(text); kind {
	case KindHelp:
		return Resolution{Kind: kind, Text: HelpText}
	case KindJoke:
		return Resolution{Kind: kind, Text: r.Joke()}
	case KindYoMama:
		return Resolution{Kind: kind, Text: r.YoMama()}
	default:
		return Resolution{Kind: KindSpeech, Text: user + " says " + r.demojize(text)}
	}
}

// Joke returns a random general joke or the matching fallback string.
func (r *Resolver) Joke() string {
	return r.pick(r.jokes, JokesEmpty, JokesMissing)
}

// YoMama returns a random yo-mama joke or the matching fallback string.
func (r *Resolver) YoMama() string {
	return r.pick(r.yoMama, YoMamaEmpty, YoMamaMissing)
}

func (r *Resolver) pick(list *WordList, empty, missing string) string {
	if list == nil {
		return missing
	}
	line, err := list.Pick(r.intn)
	switch {
	case err == nil:
		return line
	case errors.Is(err, ErrEmptyList):
		return empty
	default:
		return missing
	}
}
