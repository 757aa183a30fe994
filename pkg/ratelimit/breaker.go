// File: pkg/ratelimit/breaker.go
package ratelimit

import (
	"sync"
	"time"
)

// State describes whether the breaker is currently admitting calls.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the consecutive-failure circuit breaker.
type BreakerConfig struct {
	Threshold    int           // consecutive failures before the breaker opens
	BaseCooldown time.Duration // open duration at exactly Threshold failures
	MaxCooldown  time.Duration // escalation ceiling
}

// Breaker counts consecutive retryable failures and suppresses calls for an
// exponentially growing cooldown once the threshold is reached. It has no
// half-open probing: when the cooldown expires calls flow again, but the
// counter is only cleared by a success, so the next failure re-opens the
// breaker with a doubled cooldown.
type Breaker struct {
	cfg BreakerConfig

	mu                  sync.Mutex
	consecutiveFailures int
	openUntil           time.Time
}

// NewBreaker builds a Breaker, replacing non-positive config values with
// safe defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.BaseCooldown <= 0 {
		cfg.BaseCooldown = 30 * time.Second
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 5 * time.Minute
	}
	return &Breaker{cfg: cfg}
}

// State returns StateOpen while the current cooldown window is active.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Now().Before(b.openUntil) {
		return StateOpen
	}
	return StateClosed
}

// OpenFor returns the remaining cooldown, or zero when the breaker admits calls.
func (b *Breaker) OpenFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remaining := time.Until(b.openUntil); remaining > 0 {
		return remaining
	}
	return 0
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// RecordSuccess clears the failure counter and closes the breaker immediately.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.openUntil = time.Time{}
}

// RecordFailure counts one retryable failure. At or beyond the threshold the
// breaker opens for min(base * 2^(failures-threshold), max). Returns the
// cooldown applied, or zero if the breaker stayed closed.
func (b *Breaker) RecordFailure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.consecutiveFailures < b.cfg.Threshold {
		return 0
	}
	excess := b.consecutiveFailures - b.cfg.Threshold
	cooldown := b.cfg.BaseCooldown
	for i := 0; i < excess; i++ {
		cooldown *= 2
		if cooldown >= b.cfg.MaxCooldown {
			cooldown = b.cfg.MaxCooldown
			break
		}
	}
	if cooldown > b.cfg.MaxCooldown {
		cooldown = b.cfg.MaxCooldown
	}
	b.openUntil = time.Now().Add(cooldown)
	return cooldown
}

// Reset restores the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.RecordSuccess()
}
