package supervisor

import "time"

// Default retry parameters.
const (
	DefaultBaseCooldown    = 60 * time.Second
	DefaultMaxCooldown     = 300 * time.Second
	DefaultMultiplier      = 1.5
	DefaultBlockedCooldown = 600 * time.Second
	DefaultMaxAttempts     = 3
)

// RetryPolicy holds the backoff parameters for chat connection attempts.
// It is the only place the cooldown growth formula lives.
type RetryPolicy struct {
	// BaseCooldown is the cooldown after a reset. Defaults to 60s.
	BaseCooldown time.Duration

	// MaxCooldown caps the rate-limit cooldown. Defaults to 300s.
	MaxCooldown time.Duration

	// Multiplier grows the cooldown on each rate-limit response. Defaults to 1.5.
	Multiplier float64

	// BlockedCooldown is applied when the platform blocks the client. Defaults to 600s.
	BlockedCooldown time.Duration

	// MaxAttempts is the number of consecutive failed attempts after which
	// automatic retries stop. Defaults to 3.
	MaxAttempts int
}

// DefaultRetryPolicy returns the production retry parameters.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseCooldown:    DefaultBaseCooldown,
		MaxCooldown:     DefaultMaxCooldown,
		Multiplier:      DefaultMultiplier,
		BlockedCooldown: DefaultBlockedCooldown,
		MaxAttempts:     DefaultMaxAttempts,
	}
}

// withDefaults fills zero fields from [DefaultRetryPolicy].
func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.BaseCooldown <= 0 {
		p.BaseCooldown = d.BaseCooldown
	}
	if p.MaxCooldown <= 0 {
		p.MaxCooldown = d.MaxCooldown
	}
	if p.Multiplier <= 1 {
		p.Multiplier = d.Multiplier
	}
	if p.BlockedCooldown <= 0 {
		p.BlockedCooldown = d.BlockedCooldown
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Next returns the cooldown that follows current after a rate-limit
// response: current × Multiplier, capped at MaxCooldown.
func (p RetryPolicy) Next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.Multiplier)
	if next > p.MaxCooldown {
		return p.MaxCooldown
	}
	return next
}

// ShouldRetry reports whether another automatic attempt is allowed after
// attempts consecutive failures.
func (p RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}
