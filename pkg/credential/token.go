package credential

import "time"

// TokenCredential is a token-budget credential for the secondary pool.
// Its scarce resource is a daily token budget rather than a request
// count, and the upstream's own usage reporting is the source of truth
// for consumption: DailyTokensUsed is a cache that SyncUsage overwrites.
type TokenCredential struct {
	// ID is the stable identity of the credential.
	ID string

	// Email identifies the upstream account the token belongs to.
	Email string

	// APIToken is the secret sent upstream. Never logged.
	APIToken string

	// CloudID scopes the credential to one upstream tenant.
	CloudID string

	// Profile is the logical partition this credential belongs to.
	Profile string

	// IsActive mirrors Credential.IsActive.
	IsActive bool

	// IsDisabledByRateLimit mirrors Credential.IsDisabledByRateLimit.
	IsDisabledByRateLimit bool

	// RateLimitResetAt is when the rate-limit exclusion expires.
	RateLimitResetAt time.Time

	// FailureCount counts consecutive non-rate-limit failures.
	FailureCount int

	// DailyTokenLimit is the maximum tokens per calendar day.
	// Zero means unlimited.
	DailyTokenLimit int64

	// DailyTokensUsed is the locally cached token consumption for the
	// current day. Advisory until the next SyncUsage.
	DailyTokensUsed int64

	// LastResetDate is the calendar day the daily counter was zeroed.
	LastResetDate string

	// LastUsed is the time of the last successful dispatch.
	LastUsed time.Time
}

// EffectiveProfile returns the credential's profile, substituting
// DefaultProfile for the empty string.
func (c *TokenCredential) EffectiveProfile() string {
	if c.Profile == "" {
		return DefaultProfile
	}
	return c.Profile
}

// Eligible reports whether the credential may be selected right now.
// Callers must run Housekeep first.
func (c *TokenCredential) Eligible() bool {
	if !c.IsActive || c.IsDisabledByRateLimit {
		return false
	}
	if c.DailyTokenLimit > 0 && c.DailyTokensUsed >= c.DailyTokenLimit {
		return false
	}
	return true
}

// Housekeep applies the same lazy mutations as Credential.Housekeep
// with tokens substituted for requests. Returns true when any field
// changed.
func (c *TokenCredential) Housekeep(now time.Time) bool {
	changed := false

	if c.IsDisabledByRateLimit && !c.RateLimitResetAt.IsZero() && !now.Before(c.RateLimitResetAt) {
		c.IsDisabledByRateLimit = false
		c.RateLimitResetAt = time.Time{}
		changed = true
	}

	if day := DayOf(now); c.LastResetDate != day {
		c.DailyTokensUsed = 0
		c.LastResetDate = day
		changed = true
	}

	return changed
}
