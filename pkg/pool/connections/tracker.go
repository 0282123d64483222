// Package connections counts in-flight upstream requests per
// credential. The least-connections strategy reads these counts when
// picking a credential, and the dispatcher increments and decrements
// them around each upstream attempt.
package connections

import "sync"

// Tracker maintains per-credential active connection counts. Counts are
// advisory: they feed load balancing decisions and never gate a
// request. The zero count is the floor; a decrement without a matching
// increment stays at zero.
type Tracker struct {
	mu     sync.RWMutex
	counts map[string]int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[string]int64)}
}

// Increment records one more in-flight request for the credential.
func (t *Tracker) Increment(credentialID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[credentialID]++
}

// Decrement records the completion of one in-flight request. Floors at
// zero and removes the entry so departed credentials do not accumulate.
func (t *Tracker) Decrement(credentialID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.counts[credentialID]
	if !ok {
		return
	}
	if n <= 1 {
		delete(t.counts, credentialID)
		return
	}
	t.counts[credentialID] = n - 1
}

// Count returns the current in-flight count for the credential.
func (t *Tracker) Count(credentialID string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[credentialID]
}

// Snapshot returns a copy of all non-zero counts.
func (t *Tracker) Snapshot() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]int64, len(t.counts))
	for id, n := range t.counts {
		out[id] = n
	}
	return out
}

// Total returns the sum of all in-flight counts.
func (t *Tracker) Total() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total int64
	for _, n := range t.counts {
		total += n
	}
	return total
}
