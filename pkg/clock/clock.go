// Package clock provides a minimal time source abstraction so that
// cooldown expiry, daily rollover, and backoff timing can be tested
// deterministically without sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the pool and orchestrator.
// Production code uses System; tests inject a Fake.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// System is a Clock backed by the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// Fake is a manually advanced Clock for tests.
// The zero value is not usable; create one with NewFake.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a Fake clock frozen at the given time.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set moves the fake clock to an absolute time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
