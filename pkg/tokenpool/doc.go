// Package tokenpool manages the secondary pool of token-budget
// credentials. Health and eligibility mirror the primary pool, but the
// scarce resource is tokens consumed against a daily token limit, and
// the authoritative consumption number lives upstream: the local
// counter is a cache that SyncUsage overwrites on every refresh.
//
// Unlike the primary pool, credentials here are created and updated
// through this package, because both operations validate the
// credential against the upstream synchronously before persisting.
package tokenpool
