package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmuse/api/internal/model"
)

func TestNextDelayPermanentNeverRetries(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, MaxDelay: time.Minute}

	for attempt := 0; attempt < 10; attempt++ {
		delay, retryable := p.NextDelay(attempt, model.ErrorClassPermanent)
		assert.False(t, retryable)
		assert.Equal(t, time.Duration(0), delay)
	}
}

func TestNextDelayExponentialGrowth(t *testing.T) {
	p := BackoffPolicy{Base: 2 * time.Second, MaxDelay: time.Minute}

	for attempt := 0; attempt < 4; attempt++ {
		delay, retryable := p.NextDelay(attempt, model.ErrorClassTransient)
		require.True(t, retryable)

		base := 2 * time.Second << uint(attempt)
		assert.GreaterOrEqual(t, delay, base, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, base+base/2, "attempt %d", attempt)
	}
}

func TestNextDelayCappedAtMax(t *testing.T) {
	p := BackoffPolicy{Base: 2 * time.Second, MaxDelay: 10 * time.Second}

	for _, attempt := range []int{5, 10, 31, 64, 1000} {
		delay, retryable := p.NextDelay(attempt, model.ErrorClassTransient)
		require.True(t, retryable)
		assert.GreaterOrEqual(t, delay, 10*time.Second, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, 15*time.Second, "attempt %d", attempt)
	}
}

func TestNextDelayRateLimitedUsesLargerBase(t *testing.T) {
	p := BackoffPolicy{Base: 2 * time.Second, RateLimitedBase: 10 * time.Second, MaxDelay: time.Minute}

	delay, retryable := p.NextDelay(0, model.ErrorClassRateLimited)
	require.True(t, retryable)
	assert.GreaterOrEqual(t, delay, 10*time.Second)
	assert.LessOrEqual(t, delay, 15*time.Second)

	// Without a dedicated rate-limited base the transient base applies.
	p.RateLimitedBase = 0
	delay, retryable = p.NextDelay(0, model.ErrorClassRateLimited)
	require.True(t, retryable)
	assert.GreaterOrEqual(t, delay, 2*time.Second)
	assert.LessOrEqual(t, delay, 3*time.Second)
}

func TestNextDelayZeroConfigStillSane(t *testing.T) {
	var p BackoffPolicy

	delay, retryable := p.NextDelay(0, model.ErrorClassTransient)
	require.True(t, retryable)
	assert.GreaterOrEqual(t, delay, time.Second)
	assert.LessOrEqual(t, delay, time.Second+time.Second/2)
}
