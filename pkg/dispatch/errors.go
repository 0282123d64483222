package dispatch

import "fmt"

// CredentialError reports an upstream rejection of the credential
// itself (401, 403 or 429). The failing credential is already on
// cooldown by the time this error exists; a retry with a different
// credential may succeed immediately.
type CredentialError struct {
	StatusCode   int
	CredentialID string
	Err          error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// UpstreamServerError reports a 5xx upstream response.
type UpstreamServerError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamServerError) Error() string {
	return fmt.Sprintf("upstream server error %d: %v", e.StatusCode, e.Err)
}

func (e *UpstreamServerError) Unwrap() error {
	return e.Err
}

// UpstreamTimeoutError reports that an attempt timed out before the
// upstream responded.
type UpstreamTimeoutError struct {
	Err error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("upstream timeout: %v", e.Err)
}

func (e *UpstreamTimeoutError) Unwrap() error {
	return e.Err
}

// MaxRetriesExceeded reports an exhausted retry budget. It is distinct
// from the final attempt's own error so operators can tell a flaky
// upstream apart from a single hard failure; the last attempt's error
// is preserved through Unwrap.
type MaxRetriesExceeded struct {
	Attempts int
	Err      error
}

func (e *MaxRetriesExceeded) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MaxRetriesExceeded) Unwrap() error {
	return e.Err
}
