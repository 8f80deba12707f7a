package retry

import (
	"testing"
	"time"

	"github.com/melih/lighthouse-autobuild/internal/config"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != config.RetryBackoffLinear {
		t.Fatalf("expected linear default mode got %s", p.Mode)
	}
	if p.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts got %d", p.MaxAttempts)
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Mode != config.RetryBackoffFixed {
		t.Fatalf("expected fixed mode got %s", p.Mode)
	}
	if p.MaxAttempts != 5 {
		t.Fatalf("expected 5 attempts got %d", p.MaxAttempts)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		if d := fixed.Delay(i); d != 100*time.Millisecond {
			t.Fatalf("fixed attempt %d expected 100ms got %v", i, d)
		}
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	cases := []struct {
		attempt int
		want    time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}}
	for _, c := range cases {
		if got := linear.Delay(c.attempt); got != c.want {
			t.Fatalf("linear attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}

	exp := NewPolicy(config.RetryBackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	expCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 50 * time.Millisecond}, {2, 100 * time.Millisecond}, {3, 160 * time.Millisecond}, {64, 160 * time.Millisecond}}
	for _, c := range expCases {
		if got := exp.Delay(c.attempt); got != c.want {
			t.Fatalf("exp attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}
}

func TestDelayNonPositive(t *testing.T) {
	p := DefaultPolicy()
	if d := p.Delay(0); d != 0 {
		t.Fatalf("attempt 0 expected 0 got %v", d)
	}
	if d := p.Delay(-1); d != 0 {
		t.Fatalf("attempt -1 expected 0 got %v", d)
	}
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.Default().Retry)
	if err := p.Validate(); err != nil {
		t.Fatalf("default config should yield a valid policy: %v", err)
	}
	if p.MaxAttempts != config.DefaultMaxRetries {
		t.Fatalf("expected %d attempts got %d", config.DefaultMaxRetries, p.MaxAttempts)
	}
}

func TestValidate(t *testing.T) {
	bad := Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: time.Second, MaxAttempts: 0}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
}
