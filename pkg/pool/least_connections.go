package pool

import (
	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/pool/connections"
	"keywheel-hq/keywheel/pkg/settings"
)

// LeastConnectionsStrategy picks the eligible credential with the
// fewest in-flight requests. Ties are broken in round-robin order so
// an idle pool still rotates instead of hammering the first entry.
type LeastConnectionsStrategy struct {
	Tracker *connections.Tracker
}

// Name returns "least-connections".
func (s *LeastConnectionsStrategy) Name() settings.Strategy {
	return settings.StrategyLeastConnections
}

// Select returns the candidate with the smallest connection count,
// breaking ties by round-robin position.
func (s *LeastConnectionsStrategy) Select(sel Selection) *credential.Credential {
	if len(sel.Candidates) == 1 {
		return sel.Candidates[0]
	}

	min := int64(-1)
	var tied []*credential.Credential
	for _, cred := range sel.Candidates {
		n := s.Tracker.Count(cred.ID)
		switch {
		case min == -1 || n < min:
			min = n
			tied = tied[:0]
			tied = append(tied, cred)
		case n == min:
			tied = append(tied, cred)
		}
	}

	if len(tied) == 1 {
		return tied[0]
	}
	rr := &RoundRobinStrategy{}
	return rr.Select(Selection{All: sel.All, Candidates: tied, LastID: sel.LastID})
}
