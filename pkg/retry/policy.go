package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Default backoff parameters.
const (
	// DefaultInitialDelay is the delay before the first retry.
	DefaultInitialDelay = 1 * time.Second

	// DefaultMaxDelay is the maximum retry delay.
	DefaultMaxDelay = 60 * time.Second

	// DefaultMultiplier is the factor by which the delay increases.
	DefaultMultiplier = 2.0

	// DefaultJitter is the maximum jitter as a fraction of the base delay.
	DefaultJitter = 0.25
)

// Policy computes retry delays from an attempt count.
// It is pure apart from the jitter randomness and safe for concurrent use.
type Policy struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	mu  sync.Mutex
	rng *rand.Rand
}

// PolicyConfig allows customizing policy parameters.
// Zero values fall back to the defaults.
type PolicyConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// NewPolicy creates a policy with default settings.
func NewPolicy() *Policy {
	return NewPolicyWithConfig(PolicyConfig{})
}

// NewPolicyWithConfig creates a policy with custom settings.
func NewPolicyWithConfig(cfg PolicyConfig) *Policy {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInitialDelay
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Policy{
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Base returns the un-jittered delay for the given attempt.
// Attempt 0 is the first retry.
func (p *Policy) Base(attempt int) time.Duration {
	d := float64(p.initial)
	for i := 0; i < attempt; i++ {
		d *= p.multiplier
		if d >= float64(p.max) {
			return p.max
		}
	}
	if d > float64(p.max) {
		return p.max
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for the given attempt.
func (p *Policy) Delay(attempt int) time.Duration {
	return p.addJitter(p.Base(attempt))
}

// Max returns the configured maximum delay.
func (p *Policy) Max() time.Duration {
	return p.max
}

// addJitter adds random jitter to a delay.
func (p *Policy) addJitter(d time.Duration) time.Duration {
	if p.jitter <= 0 {
		return d
	}
	p.mu.Lock()
	f := p.rng.Float64()
	p.mu.Unlock()
	return d + time.Duration(float64(d)*p.jitter*f)
}

// Backoff tracks a retry sequence against a policy.
type Backoff struct {
	mu       sync.Mutex
	policy   *Policy
	attempts int
}

// NewBackoff creates a backoff tracker over the given policy.
// A nil policy uses the defaults.
func NewBackoff(policy *Policy) *Backoff {
	if policy == nil {
		policy = NewPolicy()
	}
	return &Backoff{policy: policy}
}

// Next returns the next jittered delay and advances the attempt counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	attempt := b.attempts
	b.attempts++
	b.mu.Unlock()
	return b.policy.Delay(attempt)
}

// Peek returns the next jittered delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	attempt := b.attempts
	b.mu.Unlock()
	return b.policy.Delay(attempt)
}

// Reset resets the attempt counter.
// Call this after a successful operation.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts returns the number of attempts since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
