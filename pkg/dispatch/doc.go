// Package dispatch drives one inbound request through the pool and the
// upstream client, retrying transient failures with exponential
// backoff.
//
// Each attempt acquires a fresh credential, so a retry after a rate
// limit or server error usually lands on a different key than the one
// that failed. Retries are invisible to the caller except as latency;
// only terminal outcomes surface.
package dispatch
