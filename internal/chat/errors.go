package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Classification sentinels. Adapters wrap these so that [Classify] does not
// have to rely on message text.
var (
	// ErrNotFound means the stream or user does not exist or cannot broadcast.
	ErrNotFound = errors.New("chat: stream not found")

	// ErrRateLimited means the platform is throttling connection attempts.
	ErrRateLimited = errors.New("chat: rate limited")

	// ErrBlocked means the platform has blocked this client.
	ErrBlocked = errors.New("chat: blocked")

	// ErrTransient means a network-level failure that is worth retrying.
	ErrTransient = errors.New("chat: transient network error")
)

// Class is the retry classification of a connection failure.
type Class int

const (
	// ClassOther is any failure without a known cause. Not retried.
	ClassOther Class = iota

	// ClassNotFound is non-retryable: the operator must fix the stream id.
	ClassNotFound

	// ClassRateLimited is retried with a growing cooldown.
	ClassRateLimited

	// ClassBlocked is not retried automatically and sets a long cooldown.
	ClassBlocked

	// ClassTransient is retried after the current cooldown.
	ClassTransient
)

// String returns the lower-case name of the class.
func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassRateLimited:
		return "rate_limited"
	case ClassBlocked:
		return "blocked"
	case ClassTransient:
		return "transient"
	default:
		return "other"
	}
}

var (
	notFoundPhrases  = []string{"user not found", "not capable of going live", "stream not found", "channel not found"}
	rateLimitPhrases = []string{"rate limit", "rate-limit", "ratelimit", "too many requests", "no message provided"}
	blockedPhrases   = []string{"blocked", "banned"}
	transientPhrases = []string{"connection refused", "connection reset", "i/o timeout", "no such host", "broken pipe", "network is unreachable", "unexpected eof"}
)

// Classify maps a connection error to its retry [Class]. Wrapped sentinels
// take precedence; otherwise the error text is inspected.
func Classify(err error) Class {
	if err == nil {
		return ClassOther
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrBlocked):
		return ClassBlocked
	case errors.Is(err, ErrTransient):
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, notFoundPhrases):
		return ClassNotFound
	case containsAny(msg, rateLimitPhrases):
		return ClassRateLimited
	case containsAny(msg, blockedPhrases):
		return ClassBlocked
	}

	if isTransient(err) || containsAny(msg, transientPhrases) {
		return ClassTransient
	}
	return ClassOther
}

func isTransient(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
