package upstream

import "fmt"

// StatusError reports a non-2xx upstream response. The body is carried
// so a terminal error can be passed through to the requesting client
// unchanged.
type StatusError struct {
	// StatusCode is the HTTP status the upstream returned.
	StatusCode int

	// Status is the status line text.
	Status string

	// Body is the raw response body, truncated to a bounded size.
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %s", e.Status)
}

// IsRateLimit reports whether the status is one the pool treats as a
// credential-level rate limit or auth rejection.
func (e *StatusError) IsRateLimit() bool {
	switch e.StatusCode {
	case 401, 403, 429:
		return true
	}
	return false
}

// IsServerError reports whether the upstream failed with a 5xx status.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// TimeoutError reports that the upstream exchange did not complete in
// time, either a transport timeout or an expired request deadline.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream request to %s timed out: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// TransportError reports a network-level failure before any response
// was received (connection refused, DNS failure, reset).
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
