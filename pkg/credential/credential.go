package credential

import (
	"time"
)

// DefaultProfile is the profile assigned to credentials that were
// created without an explicit profile.
const DefaultProfile = "default"

// Credential is a request-count quota credential: one upstream API key
// plus the health and quota counters the pool manager maintains.
//
// The administrative layer creates and deletes credentials; the pool
// only reads them and updates counters and health fields.
type Credential struct {
	// ID is the stable identity of the credential.
	ID string

	// Secret is the bearer credential sent upstream. It must never
	// appear in logs; see telemetry/logging.Redactor.
	Secret string

	// Profile is the logical partition this credential belongs to.
	// Empty means DefaultProfile.
	Profile string

	// IsActive reports whether the credential is administratively and
	// health-wise usable. Cleared when FailureCount reaches the
	// configured maximum; only explicit reactivation sets it back.
	IsActive bool

	// IsDisabledByRateLimit marks a temporary exclusion after a
	// 401/403/429-class response. Cleared lazily once the cooldown
	// expires.
	IsDisabledByRateLimit bool

	// RateLimitResetAt is when the rate-limit exclusion expires.
	// Zero when the credential is not rate limited.
	RateLimitResetAt time.Time

	// FailureCount counts consecutive non-rate-limit failures since
	// the last success.
	FailureCount int

	// RequestCount is the lifetime successful-use counter.
	RequestCount int64

	// DailyRateLimit is the maximum requests per calendar day.
	// Zero means unlimited.
	DailyRateLimit int

	// DailyRequestsUsed counts requests served since the last rollover.
	DailyRequestsUsed int

	// LastResetDate is the calendar day (YYYY-MM-DD) the daily counter
	// was last zeroed. Empty until the first rollover.
	LastResetDate string

	// LastUsed is the time of the last successful dispatch.
	LastUsed time.Time
}

// EffectiveProfile returns the credential's profile, substituting
// DefaultProfile for the empty string.
func (c *Credential) EffectiveProfile() string {
	if c.Profile == "" {
		return DefaultProfile
	}
	return c.Profile
}

// Eligible reports whether the credential may be selected right now.
// Callers must run Housekeep first so expired cooldowns and stale daily
// counters do not mask an eligible credential.
func (c *Credential) Eligible() bool {
	if !c.IsActive || c.IsDisabledByRateLimit {
		return false
	}
	if c.DailyRateLimit > 0 && c.DailyRequestsUsed >= c.DailyRateLimit {
		return false
	}
	return true
}

// Housekeep applies the lazy self-healing mutations: it clears an
// expired rate-limit cooldown and rolls the daily counter over on the
// first evaluation of a new calendar day. It returns true when any
// field changed, so the caller knows to persist the credential.
//
// Housekeep is idempotent: calling it repeatedly within the same day
// and cooldown window changes nothing.
func (c *Credential) Housekeep(now time.Time) bool {
	changed := false

	if c.IsDisabledByRateLimit && !c.RateLimitResetAt.IsZero() && !now.Before(c.RateLimitResetAt) {
		c.IsDisabledByRateLimit = false
		c.RateLimitResetAt = time.Time{}
		changed = true
	}

	if day := DayOf(now); c.LastResetDate != day {
		c.DailyRequestsUsed = 0
		c.LastResetDate = day
		changed = true
	}

	return changed
}

// DayOf formats a time as the calendar-day key used for daily rollover.
func DayOf(t time.Time) string {
	return t.Format("2006-01-02")
}
