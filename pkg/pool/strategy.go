package pool

import (
	"fmt"

	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/pool/connections"
	"keywheel-hq/keywheel/pkg/settings"
)

// Selection is the input to a strategy pick for one profile.
type Selection struct {
	// All is every credential in the profile in creation order. It
	// anchors cursor positions even when the previously returned
	// credential is no longer a candidate.
	All []*credential.Credential

	// Candidates is the eligible subset of All, preserving order.
	// Never empty.
	Candidates []*credential.Credential

	// LastID is the id of the credential last returned for this
	// profile, or "" if none has been returned yet.
	LastID string
}

// Strategy selects one credential from the eligible candidates.
//
// Implementations must be safe for concurrent use; the pool calls them
// from multiple request goroutines.
type Strategy interface {
	// Name returns the strategy identifier used in configuration,
	// logs and metrics.
	Name() settings.Strategy

	// Select picks one of sel.Candidates.
	Select(sel Selection) *credential.Credential
}

// newStrategy maps a configured strategy name to an implementation.
// The tracker is consulted only by least-connections.
func newStrategy(name settings.Strategy, tracker *connections.Tracker) (Strategy, error) {
	switch name {
	case settings.StrategyRoundRobin:
		return &RoundRobinStrategy{}, nil
	case settings.StrategyRandom:
		return &RandomStrategy{}, nil
	case settings.StrategyLeastConnections:
		return &LeastConnectionsStrategy{Tracker: tracker}, nil
	default:
		return nil, fmt.Errorf("unknown load balancing strategy %q", name)
	}
}
