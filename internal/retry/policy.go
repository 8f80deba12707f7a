package retry

import (
	"fmt"
	"time"

	"github.com/melih/lighthouse-autobuild/internal/config"
)

// Policy bounds a build session and paces retries of transient failures.
// It is immutable after construction.
type Policy struct {
	Mode        config.RetryBackoffMode // fixed|linear|exponential
	Initial     time.Duration           // base delay
	Max         time.Duration           // cap for growth
	MaxAttempts int                     // total build attempts per session
}

// DefaultPolicy returns the default policy (linear, 1s initial, 10s cap, 3 attempts).
func DefaultPolicy() Policy {
	return Policy{
		Mode:        config.RetryBackoffLinear,
		Initial:     time.Second,
		Max:         10 * time.Second,
		MaxAttempts: config.DefaultMaxRetries,
	}
}

// NewPolicy builds a policy from raw fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDuration time.Duration, maxAttempts int) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig builds a policy from the retry config section.
func FromConfig(cfg config.RetryConfig) Policy {
	return NewPolicy(cfg.Backoff, cfg.InitialDelay, cfg.MaxDelay, cfg.MaxRetries)
}

// Delay returns the backoff delay before the given retry (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		if retryCount > 30 {
			return p.Max
		}
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	return nil
}
