// File: pkg/ratelimit/breaker_test.go
package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 3, BaseCooldown: 50 * time.Millisecond, MaxCooldown: time.Second})

	for i := 0; i < 2; i++ {
		cooldown := b.RecordFailure()
		assert.Zero(t, cooldown, "breaker must stay closed below the threshold")
		assert.Equal(t, StateClosed, b.State())
	}

	cooldown := b.RecordFailure()
	assert.Equal(t, 50*time.Millisecond, cooldown)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 3, b.Failures())
}

func TestBreakerSuccessResets(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, BaseCooldown: 50 * time.Millisecond, MaxCooldown: time.Second})

	t.Run("below threshold", func(t *testing.T) {
		b.RecordFailure()
		b.RecordSuccess()
		assert.Zero(t, b.Failures())
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("above threshold", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			b.RecordFailure()
		}
		require.Equal(t, StateOpen, b.State())
		b.RecordSuccess()
		assert.Zero(t, b.Failures())
		assert.Equal(t, StateClosed, b.State())
		assert.Zero(t, b.OpenFor())
	})
}

func TestBreakerCooldownEscalates(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, BaseCooldown: 40 * time.Millisecond, MaxCooldown: 100 * time.Millisecond})

	b.RecordFailure()
	assert.Equal(t, 40*time.Millisecond, b.RecordFailure(), "excess 0 uses the base cooldown")
	assert.Equal(t, 80*time.Millisecond, b.RecordFailure(), "excess 1 doubles it")
	assert.Equal(t, 100*time.Millisecond, b.RecordFailure(), "escalation is capped at the max")
	assert.Equal(t, 100*time.Millisecond, b.RecordFailure())
}

func TestBreakerReopensAfterExpiry(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, BaseCooldown: 30 * time.Millisecond, MaxCooldown: time.Second})

	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateClosed, b.State(), "an expired cooldown admits calls again")
	assert.Equal(t, 2, b.Failures(), "the counter is only cleared by a success")

	// The next failure re-opens with a doubled cooldown.
	cooldown := b.RecordFailure()
	assert.Equal(t, 60*time.Millisecond, cooldown)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	assert.Equal(t, StateClosed, b.State())
	for i := 0; i < 4; i++ {
		assert.Zero(t, b.RecordFailure())
	}
	assert.Equal(t, 30*time.Second, b.RecordFailure(), "default threshold 5, default base cooldown 30s")
	b.Reset()
	assert.Zero(t, b.Failures())
	assert.Equal(t, StateClosed, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(7).String())
}
