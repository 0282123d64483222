// Package credential defines the data model for upstream API credentials
// and the eligibility rules that decide whether a credential may serve
// the next request.
//
// Two credential kinds exist: request-count credentials (the primary
// pool, one request consumes one unit of daily quota) and token-budget
// credentials (the secondary pool, whose daily consumption is reported
// by the upstream and reconciled by sync). Both share the same health
// state machine: active/inactive, rate-limit cooldown with lazy expiry,
// and a consecutive-failure counter that deactivates the credential at
// a configured threshold.
//
// Housekeeping (cooldown expiry, daily counter rollover) is performed
// lazily in the read path, never by a background sweeper. The helpers
// here are idempotent and safe to invoke on every evaluation.
package credential
