// Package pool manages the credential pool: eligibility, selection,
// and health accounting for the upstream API keys a profile can use.
//
// The pool is the owner of credential health. Acquire evaluates
// eligibility against the store's current records, performing lazy
// housekeeping (expired cooldowns, daily counter rollover) as a side
// effect of the read, then applies the configured load balancing
// strategy. ReportSuccess and ReportError write the outcome back and
// drive the failure escalation and rate limit cooldown rules.
//
// A sticky rotation cadence is layered on top of whichever strategy is
// configured: a credential that has served a configured number of
// consecutive successes sits out until every other pool member has
// taken its turn, so no single credential is perpetually favored.
package pool
