// Package retry provides the backoff policy and supervisor used to
// acquire hardware that may be temporarily unavailable.
package retry

import (
	"fmt"
	"time"
)

// Policy encapsulates exponential backoff settings for transient
// failures. It is immutable after construction.
type Policy struct {
	Initial time.Duration // base delay, restored after every success
	Max     time.Duration // cap for growth
}

// DefaultPolicy returns the standard hardware-acquisition policy
// (1s initial, doubling to a 60s cap).
func DefaultPolicy() Policy {
	return Policy{Initial: time.Second, Max: 60 * time.Second}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values
// fall back to defaults.
func NewPolicy(initial, maxDelay time.Duration) Policy {
	p := DefaultPolicy()
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff delay for the given attempt number
// (1-based: the delay before the second attempt is Delay(1)). The
// sequence doubles from Initial and is capped at Max.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// Guard the shift; beyond 62 doublings the cap has long applied.
	if attempt > 62 {
		return p.Max
	}
	d := p.Initial << (attempt - 1)
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// Validate ensures invariants; returns an error if the policy is
// impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.Initial > p.Max {
		return fmt.Errorf("initial exceeds max")
	}
	return nil
}
