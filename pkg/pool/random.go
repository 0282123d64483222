package pool

import (
	"math/rand/v2"

	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/settings"
)

// RandomStrategy picks uniformly among the eligible candidates.
type RandomStrategy struct{}

// Name returns "random".
func (s *RandomStrategy) Name() settings.Strategy {
	return settings.StrategyRandom
}

// Select returns a uniform random candidate.
func (s *RandomStrategy) Select(sel Selection) *credential.Credential {
	if len(sel.Candidates) == 1 {
		return sel.Candidates[0]
	}
	return sel.Candidates[rand.IntN(len(sel.Candidates))]
}
