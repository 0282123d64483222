// Keywheel is a credential pool proxy for OpenAI-compatible chat
// completion APIs.
//
// It holds a pool of upstream API keys per profile, picks one per
// request with a configurable load balancing strategy, retries
// transient upstream failures with exponential backoff, and tracks
// per-key health: rate limit cooldowns, failure escalation and daily
// usage quotas.
//
// Usage:
//
//	# Start the proxy with a configuration file
//	keywheel run --config /etc/keywheel/config.yaml
//
//	# Show version information
//	keywheel version
package main

func main() {
	Execute()
}
