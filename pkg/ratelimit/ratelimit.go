// Package ratelimit throttles inbound requests per profile before they
// reach the pool, so one noisy profile cannot starve the others of
// upstream budget.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"keywheel-hq/keywheel/pkg/settings"
)

// Limiter applies the configured requests-per-second cap per profile.
// A cap of zero disables throttling. The limit is re-read from settings
// on every call, so hot reloads take effect without restarting.
type Limiter struct {
	settings settings.Provider

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiter creates a limiter backed by the settings provider.
func NewLimiter(provider settings.Provider) *Limiter {
	return &Limiter{
		settings: provider,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the profile may proceed or the context is
// cancelled. Returns immediately when no rate limit is configured.
func (l *Limiter) Wait(ctx context.Context, profile string) error {
	limiter := l.limiterFor(profile)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow reports whether the profile may proceed right now without
// blocking.
func (l *Limiter) Allow(profile string) bool {
	limiter := l.limiterFor(profile)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (l *Limiter) limiterFor(profile string) *rate.Limiter {
	rps := l.settings.Read().RequestRateLimit
	if rps <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[profile]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rps), rps)
		l.limiters[profile] = limiter
	} else if limiter.Limit() != rate.Limit(rps) {
		limiter.SetLimit(rate.Limit(rps))
		limiter.SetBurst(rps)
	}
	return limiter
}
