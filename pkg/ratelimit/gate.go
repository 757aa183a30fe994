// File: pkg/ratelimit/gate.go
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

// Config tunes a Gate. Zero values are replaced with defaults in NewGate.
type Config struct {
	MinInterval   time.Duration // minimum spacing between admitted requests
	Window        time.Duration // rolling budget window, normally one minute
	PerWindow     int           // request ceiling inside the window
	BackoffBase   time.Duration // first retry delay
	BackoffMax    time.Duration // retry delay ceiling, before jitter
	CooldownOn429 time.Duration // local suppression after a hard HTTP 429
	MaxInFlight   int           // simultaneous requests allowed past the gate
	Breaker       BreakerConfig
}

// Gate serializes admission to a remote endpoint: a minimum inter-request
// interval, a rolling per-window request budget, a consecutive-failure
// circuit breaker and a provider-signalled cooldown window, plus a bounded
// in-flight slot count. One Gate guards one endpoint; state lives in-process
// only and is not persisted across restarts.
type Gate struct {
	cfg     Config
	logger  *utilities.Logger
	breaker *Breaker

	mu            sync.Mutex
	stamps        []time.Time // admission times inside the rolling window
	lastCall      time.Time
	cooldownUntil time.Time

	inflight chan struct{}
}

// NewGate builds a Gate, defaulting any non-positive config values.
func NewGate(cfg Config, logger *utilities.Logger) *Gate {
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
		logger.LogWarn("Gate: logger not provided, using default.")
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.PerWindow <= 0 {
		cfg.PerWindow = 8
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.CooldownOn429 <= 0 {
		cfg.CooldownOn429 = time.Minute
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	return &Gate{
		cfg:      cfg,
		logger:   logger,
		breaker:  NewBreaker(cfg.Breaker),
		inflight: make(chan struct{}, cfg.MaxInFlight),
	}
}

// Acquire admits one request or rejects it locally. The breaker and the 429
// cooldown reject immediately without any waiting; otherwise the caller
// blocks until both the inter-request interval and the rolling window budget
// admit it. When the ceiling is hit the wait runs until the oldest admission
// in the window expires. Returns ReasonNone on admission; the caller must
// then call Release exactly once. Cancellation via ctx returns ReasonTimeout
// and records nothing.
func (g *Gate) Acquire(ctx context.Context) Reason {
	if remaining := g.breaker.OpenFor(); remaining > 0 {
		g.logger.LogDebug("Gate: circuit open for another %s, rejecting locally.", remaining.Round(time.Millisecond))
		return ReasonCooldown
	}

	g.mu.Lock()
	if remaining := time.Until(g.cooldownUntil); remaining > 0 {
		g.mu.Unlock()
		g.logger.LogDebug("Gate: provider cooldown active for another %s, rejecting locally.", remaining.Round(time.Millisecond))
		return ReasonCooldown
	}
	g.mu.Unlock()

	select {
	case g.inflight <- struct{}{}:
	case <-ctx.Done():
		return ReasonTimeout
	}

	for {
		g.mu.Lock()
		now := time.Now()
		g.evictLocked(now)

		var wait time.Duration
		if !g.lastCall.IsZero() {
			if d := g.cfg.MinInterval - now.Sub(g.lastCall); d > wait {
				wait = d
			}
		}
		if len(g.stamps) >= g.cfg.PerWindow {
			if d := g.stamps[0].Add(g.cfg.Window).Sub(now); d > wait {
				wait = d
			}
		}
		if wait <= 0 {
			g.stamps = append(g.stamps, now)
			g.lastCall = now
			g.mu.Unlock()
			return ReasonNone
		}
		g.mu.Unlock()

		g.logger.LogDebug("Gate: throttled, sleeping %s.", wait.Round(time.Millisecond))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			<-g.inflight
			return ReasonTimeout
		case <-timer.C:
		}
	}
}

// Release returns the in-flight slot taken by a successful Acquire.
func (g *Gate) Release() {
	<-g.inflight
}

// evictLocked drops admission timestamps older than the rolling window.
// Callers must hold g.mu.
func (g *Gate) evictLocked(now time.Time) {
	cutoff := now.Add(-g.cfg.Window)
	i := 0
	for i < len(g.stamps) && !g.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.stamps = append(g.stamps[:0], g.stamps[i:]...)
	}
}

// RecordSuccess clears the breaker.
func (g *Gate) RecordSuccess() {
	g.breaker.RecordSuccess()
}

// RecordFailure counts one retryable failure against the breaker.
func (g *Gate) RecordFailure() {
	if cooldown := g.breaker.RecordFailure(); cooldown > 0 {
		g.logger.LogWarn("Gate: circuit opened for %s after %d consecutive failures.", cooldown, g.breaker.Failures())
	}
}

// StartCooldown arms the provider cooldown window; d <= 0 uses the configured
// default. Used on a hard HTTP 429.
func (g *Gate) StartCooldown(d time.Duration) {
	if d <= 0 {
		d = g.cfg.CooldownOn429
	}
	g.mu.Lock()
	g.cooldownUntil = time.Now().Add(d)
	g.mu.Unlock()
	g.logger.LogWarn("Gate: provider rate limit hit, suppressing requests for %s.", d)
}

// CooldownActive reports whether the 429 cooldown window is still armed.
func (g *Gate) CooldownActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.cooldownUntil)
}

// BreakerState exposes the breaker state for diagnostics.
func (g *Gate) BreakerState() State {
	return g.breaker.State()
}

// Backoff returns the jittered delay before retry attempt (0-based).
func (g *Gate) Backoff(attempt int) time.Duration {
	return BackoffDelay(g.cfg.BackoffBase, g.cfg.BackoffMax, attempt)
}

// BackoffDelay computes min(base * 2^attempt, max) with a ±20% jitter
// applied after capping.
func BackoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	d := max
	if attempt < 20 {
		d = base << uint(attempt)
		if d > max || d <= 0 {
			d = max
		}
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
