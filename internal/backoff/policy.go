// Package backoff provides exponential backoff with jitter for reconnect loops.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// InitialMs is the initial backoff duration in milliseconds.
	InitialMs float64
	// MaxMs is the ceiling in milliseconds.
	MaxMs float64
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) applied on top.
	Jitter float64
}

// Compute calculates the backoff duration for a given attempt number.
// base = initialMs * factor^(attempt-1), jitter = base * jitter * random().
// Returns min(maxMs, base + jitter). Attempt numbers start at 1.
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand calculates the backoff duration using a provided random
// value in [0.0, 1.0). Useful for deterministic tests.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(policy.MaxMs, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// ReconnectPolicy is the stream reconnect schedule: the first retry matches
// the server's advertised retry hint (3s), later retries double up to a 30s
// ceiling so a restart with many connected clients does not turn into a
// reconnection storm.
func ReconnectPolicy() Policy {
	return Policy{
		InitialMs: 3000,
		MaxMs:     30000,
		Factor:    2,
		Jitter:    0.2,
	}
}

// WithInitial returns a copy of the policy with a different initial delay.
// The receiver uses this to honor a server-sent retry directive.
func (p Policy) WithInitial(d time.Duration) Policy {
	if d <= 0 {
		return p
	}
	p.InitialMs = float64(d.Milliseconds())
	if p.MaxMs < p.InitialMs {
		p.MaxMs = p.InitialMs
	}
	return p
}
