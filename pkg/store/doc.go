// Package store provides durable persistence for pool credentials.
//
// The pool manager treats the store as the source of record: every
// Acquire reads the profile's credentials fresh, and every counter or
// health mutation is written back through Update. Updates replace all
// mutable fields of one credential in a single statement, so a
// concurrent reader never observes a partially applied update.
//
// Two backends exist: an in-memory backend for tests and a SQLite
// backend for deployments. Credential creation and deletion belong to
// the administrative layer; the request path only reads and updates.
package store
