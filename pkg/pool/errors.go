package pool

import "fmt"

// NoEligibleCredentialError is returned by Acquire when the profile has
// no credential that can serve a request right now. The counts explain
// why, for operator-facing logs and responses.
type NoEligibleCredentialError struct {
	Profile     string
	Total       int
	Inactive    int
	CoolingDown int
	Exhausted   int
}

func (e *NoEligibleCredentialError) Error() string {
	if e.Total == 0 {
		return fmt.Sprintf("no credentials configured for profile %q", e.Profile)
	}
	return fmt.Sprintf("no eligible credential for profile %q (%d total: %d inactive, %d cooling down, %d over daily quota)",
		e.Profile, e.Total, e.Inactive, e.CoolingDown, e.Exhausted)
}
