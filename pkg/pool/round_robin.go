package pool

import (
	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/settings"
)

// RoundRobinStrategy returns the next eligible credential after the one
// last returned, in the pool's creation order, wrapping around.
//
// The cursor is anchored on Selection.All rather than the candidate
// subset, so a credential dropping out of eligibility does not shift
// which neighbor is "next".
type RoundRobinStrategy struct{}

// Name returns "round-robin".
func (s *RoundRobinStrategy) Name() settings.Strategy {
	return settings.StrategyRoundRobin
}

// Select returns the first candidate positioned after LastID in pool
// order. If LastID is empty or no longer present, the first candidate
// wins.
func (s *RoundRobinStrategy) Select(sel Selection) *credential.Credential {
	if len(sel.Candidates) == 1 {
		return sel.Candidates[0]
	}

	last := -1
	if sel.LastID != "" {
		for i, cred := range sel.All {
			if cred.ID == sel.LastID {
				last = i
				break
			}
		}
	}
	if last == -1 {
		return sel.Candidates[0]
	}

	eligible := make(map[string]*credential.Credential, len(sel.Candidates))
	for _, cred := range sel.Candidates {
		eligible[cred.ID] = cred
	}

	n := len(sel.All)
	for step := 1; step <= n; step++ {
		next := sel.All[(last+step)%n]
		if cred, ok := eligible[next.ID]; ok {
			return cred
		}
	}
	return sel.Candidates[0]
}
