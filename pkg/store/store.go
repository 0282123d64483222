package store

import (
	"context"
	"errors"

	"keywheel-hq/keywheel/pkg/credential"
)

// ErrNotFound is returned when a credential id does not exist.
var ErrNotFound = errors.New("credential not found")

// Store is the durable record of request-count credentials.
// Implementations must be safe for concurrent use; Update calls for
// different ids must not serialize against each other more than the
// backend requires.
type Store interface {
	// GetByID returns one credential. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*credential.Credential, error)

	// ListByProfile returns all credentials in a profile in stable
	// creation order. An unknown profile yields an empty slice.
	ListByProfile(ctx context.Context, profile string) ([]*credential.Credential, error)

	// Update persists all mutable fields of the credential in one
	// atomic write. Returns ErrNotFound if the id does not exist.
	Update(ctx context.Context, cred *credential.Credential) error

	// Close releases backend resources.
	Close() error
}

// TokenStore is the durable record of token-budget credentials.
// Unlike Store it carries Create and Delete: the token pool validates
// credentials against the upstream synchronously before persisting
// them, so creation flows through the pool rather than around it.
type TokenStore interface {
	// GetByID returns one token credential. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*credential.TokenCredential, error)

	// ListByProfile returns all token credentials in a profile in
	// stable creation order.
	ListByProfile(ctx context.Context, profile string) ([]*credential.TokenCredential, error)

	// Create persists a new token credential.
	Create(ctx context.Context, cred *credential.TokenCredential) error

	// Update persists all mutable fields in one atomic write.
	// Returns ErrNotFound if the id does not exist.
	Update(ctx context.Context, cred *credential.TokenCredential) error

	// Delete removes a token credential. No-op if absent.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}
