package tokenpool

import "fmt"

// AuthenticationFailedError reports that the upstream rejected a token
// credential during create, update or an explicit test. Never retried.
type AuthenticationFailedError struct {
	Email string
	Err   error
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("upstream rejected credential for %s: %v", e.Email, e.Err)
}

func (e *AuthenticationFailedError) Unwrap() error {
	return e.Err
}

// NoEligibleTokenCredentialError is returned by Acquire when no token
// credential in the profile can serve.
type NoEligibleTokenCredentialError struct {
	Profile string
	Total   int
}

func (e *NoEligibleTokenCredentialError) Error() string {
	if e.Total == 0 {
		return fmt.Sprintf("no token credentials configured for profile %q", e.Profile)
	}
	return fmt.Sprintf("no eligible token credential for profile %q (%d total)", e.Profile, e.Total)
}
