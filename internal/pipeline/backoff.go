package pipeline

import (
	"math/rand"
	"time"

	"github.com/pixelmuse/api/internal/model"
)

// BackoffPolicy maps (attempt, error class) to a wait duration. It is a
// pure decision function; attempt budgets are enforced by the caller.
type BackoffPolicy struct {
	// Base is the first-attempt delay for transient errors.
	Base time.Duration
	// RateLimitedBase replaces Base for rate-limited errors; zero means
	// use Base.
	RateLimitedBase time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// NextDelay returns the delay before re-attempting and whether a retry
// is allowed at all. Permanent errors never retry. The delay is
// base * 2^attempt capped at MaxDelay, plus uniform jitter in
// [0, delay/2].
func (p BackoffPolicy) NextDelay(attempt int, class model.ErrorClass) (time.Duration, bool) {
	if class == model.ErrorClassPermanent {
		return 0, false
	}

	base := p.Base
	if class == model.ErrorClassRateLimited && p.RateLimitedBase > 0 {
		base = p.RateLimitedBase
	}
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay < base {
		maxDelay = base
	}

	delay := maxDelay
	// Shifting past 62 bits overflows a Duration long before any real
	// attempt count gets there.
	if attempt < 32 {
		if d := base << uint(attempt); d > 0 && d < maxDelay {
			delay = d
		}
	}

	jitter := time.Duration(0)
	if half := int64(delay / 2); half > 0 {
		jitter = time.Duration(rand.Int63n(half + 1))
	}
	return delay + jitter, true
}
