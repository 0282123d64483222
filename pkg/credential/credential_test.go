package credential

import (
	"testing"
	"time"
)

func TestCredential_Eligible(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
		want bool
	}{
		{
			name: "active under quota",
			cred: Credential{IsActive: true, DailyRateLimit: 100, DailyRequestsUsed: 50},
			want: true,
		},
		{
			name: "inactive",
			cred: Credential{IsActive: false},
			want: false,
		},
		{
			name: "rate limited",
			cred: Credential{IsActive: true, IsDisabledByRateLimit: true},
			want: false,
		},
		{
			name: "daily quota exhausted",
			cred: Credential{IsActive: true, DailyRateLimit: 10, DailyRequestsUsed: 10},
			want: false,
		},
		{
			name: "unlimited daily quota",
			cred: Credential{IsActive: true, DailyRateLimit: 0, DailyRequestsUsed: 100000},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Eligible(); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCredential_Housekeep_CooldownExpiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cred := Credential{
		IsActive:              true,
		IsDisabledByRateLimit: true,
		RateLimitResetAt:      now.Add(5 * time.Minute),
		LastResetDate:         DayOf(now),
	}

	// Before the reset time nothing changes.
	if changed := cred.Housekeep(now); changed {
		t.Error("Housekeep() before reset time should not change anything")
	}
	if !cred.IsDisabledByRateLimit {
		t.Error("credential should still be rate limited before reset time")
	}

	// At the reset time the flag clears.
	if changed := cred.Housekeep(now.Add(5 * time.Minute)); !changed {
		t.Error("Housekeep() at reset time should report a change")
	}
	if cred.IsDisabledByRateLimit {
		t.Error("rate limit flag should be cleared at reset time")
	}
	if !cred.RateLimitResetAt.IsZero() {
		t.Error("RateLimitResetAt should be zeroed after expiry")
	}
}

func TestCredential_Housekeep_DailyRollover(t *testing.T) {
	day1 := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)

	cred := Credential{
		IsActive:          true,
		DailyRateLimit:    10,
		DailyRequestsUsed: 10,
		LastResetDate:     DayOf(day1),
	}

	if cred.Eligible() {
		t.Fatal("credential at quota should be ineligible")
	}

	// Same day: counter untouched.
	if changed := cred.Housekeep(day1); changed {
		t.Error("Housekeep() within the same day should not change anything")
	}

	// New day: counter resets exactly once.
	if changed := cred.Housekeep(day2); !changed {
		t.Error("Housekeep() on a new day should report a change")
	}
	if cred.DailyRequestsUsed != 0 {
		t.Errorf("DailyRequestsUsed = %d after rollover, want 0", cred.DailyRequestsUsed)
	}
	if !cred.Eligible() {
		t.Error("credential should be eligible again after rollover")
	}

	// Idempotent within the new day.
	if changed := cred.Housekeep(day2.Add(time.Hour)); changed {
		t.Error("second Housekeep() within the same day should be a no-op")
	}
}

func TestTokenCredential_Eligible(t *testing.T) {
	cred := TokenCredential{
		IsActive:        true,
		DailyTokenLimit: 1000,
		DailyTokensUsed: 999,
	}
	if !cred.Eligible() {
		t.Error("credential under token budget should be eligible")
	}

	cred.DailyTokensUsed = 1000
	if cred.Eligible() {
		t.Error("credential at token budget should be ineligible")
	}

	cred.DailyTokenLimit = 0
	if !cred.Eligible() {
		t.Error("zero DailyTokenLimit means unlimited")
	}
}

func TestEffectiveProfile(t *testing.T) {
	c := Credential{}
	if got := c.EffectiveProfile(); got != DefaultProfile {
		t.Errorf("EffectiveProfile() = %q, want %q", got, DefaultProfile)
	}
	c.Profile = "tenant-a"
	if got := c.EffectiveProfile(); got != "tenant-a" {
		t.Errorf("EffectiveProfile() = %q, want %q", got, "tenant-a")
	}
}
