package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// BakeLimiter is a single token bucket shared by all bake workers.
// It paces build attempts so a startup-scan replay cannot stampede the
// archive and baking services. Burst equals the rate so no capacity is
// "saved up" beyond the configured per-second maximum.
type BakeLimiter struct {
	limiter *rate.Limiter
}

// New creates a BakeLimiter allowing ratePerSec attempts per second.
// A non-positive rate disables limiting.
func New(ratePerSec int) *BakeLimiter {
	if ratePerSec <= 0 {
		return &BakeLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &BakeLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Wait blocks until the limiter grants a token. Called by each bake task
// before it touches the archive. Returns a non-nil error only if ctx is
// cancelled while waiting.
func (l *BakeLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
