package store

import (
	"context"
	"fmt"
	"sync"

	"keywheel-hq/keywheel/pkg/credential"
)

// MemoryBackend is an in-memory Store and TokenStore for tests and
// ephemeral deployments. All methods copy credentials on the way in and
// out so callers never share mutable state with the backend.
type MemoryBackend struct {
	mu     sync.RWMutex
	creds  map[string]*credential.Credential
	tokens map[string]*credential.TokenCredential

	// order preserves insertion order per kind for stable listings.
	credOrder  []string
	tokenOrder []string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		creds:  make(map[string]*credential.Credential),
		tokens: make(map[string]*credential.TokenCredential),
	}
}

// Seed inserts a request-count credential, used by tests and by the
// administrative wiring. Overwrites an existing id.
func (m *MemoryBackend) Seed(cred *credential.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.creds[cred.ID]; !exists {
		m.credOrder = append(m.credOrder, cred.ID)
	}
	c := *cred
	m.creds[cred.ID] = &c
}

// GetByID returns a copy of the credential.
func (m *MemoryBackend) GetByID(ctx context.Context, id string) (*credential.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.creds[id]
	if !ok {
		return nil, fmt.Errorf("credential %q: %w", id, ErrNotFound)
	}
	c := *cred
	return &c, nil
}

// ListByProfile returns copies of all credentials in the profile, in
// insertion order.
func (m *MemoryBackend) ListByProfile(ctx context.Context, profile string) ([]*credential.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*credential.Credential
	for _, id := range m.credOrder {
		cred := m.creds[id]
		if cred.EffectiveProfile() == profile {
			c := *cred
			out = append(out, &c)
		}
	}
	return out, nil
}

// Update replaces the stored credential with a copy of cred.
func (m *MemoryBackend) Update(ctx context.Context, cred *credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.creds[cred.ID]; !ok {
		return fmt.Errorf("credential %q: %w", cred.ID, ErrNotFound)
	}
	c := *cred
	m.creds[cred.ID] = &c
	return nil
}

// GetTokenByID returns a copy of the token credential.
// Implements TokenStore.GetByID via the TokenView adapter.
func (m *MemoryBackend) getTokenByID(id string) (*credential.TokenCredential, error) {
	cred, ok := m.tokens[id]
	if !ok {
		return nil, fmt.Errorf("token credential %q: %w", id, ErrNotFound)
	}
	c := *cred
	return &c, nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// TokenView exposes the backend's token credential table as a
// TokenStore. The view shares the backend's lock.
func (m *MemoryBackend) TokenView() TokenStore {
	return &memoryTokenView{backend: m}
}

type memoryTokenView struct {
	backend *MemoryBackend
}

func (v *memoryTokenView) GetByID(ctx context.Context, id string) (*credential.TokenCredential, error) {
	v.backend.mu.RLock()
	defer v.backend.mu.RUnlock()
	return v.backend.getTokenByID(id)
}

func (v *memoryTokenView) ListByProfile(ctx context.Context, profile string) ([]*credential.TokenCredential, error) {
	v.backend.mu.RLock()
	defer v.backend.mu.RUnlock()

	var out []*credential.TokenCredential
	for _, id := range v.backend.tokenOrder {
		cred := v.backend.tokens[id]
		if cred.EffectiveProfile() == profile {
			c := *cred
			out = append(out, &c)
		}
	}
	return out, nil
}

func (v *memoryTokenView) Create(ctx context.Context, cred *credential.TokenCredential) error {
	v.backend.mu.Lock()
	defer v.backend.mu.Unlock()

	if _, exists := v.backend.tokens[cred.ID]; exists {
		return fmt.Errorf("token credential %q already exists", cred.ID)
	}
	c := *cred
	v.backend.tokens[cred.ID] = &c
	v.backend.tokenOrder = append(v.backend.tokenOrder, cred.ID)
	return nil
}

func (v *memoryTokenView) Update(ctx context.Context, cred *credential.TokenCredential) error {
	v.backend.mu.Lock()
	defer v.backend.mu.Unlock()

	if _, ok := v.backend.tokens[cred.ID]; !ok {
		return fmt.Errorf("token credential %q: %w", cred.ID, ErrNotFound)
	}
	c := *cred
	v.backend.tokens[cred.ID] = &c
	return nil
}

func (v *memoryTokenView) Delete(ctx context.Context, id string) error {
	v.backend.mu.Lock()
	defer v.backend.mu.Unlock()

	if _, ok := v.backend.tokens[id]; !ok {
		return nil
	}
	delete(v.backend.tokens, id)
	for i, existing := range v.backend.tokenOrder {
		if existing == id {
			v.backend.tokenOrder = append(v.backend.tokenOrder[:i], v.backend.tokenOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (v *memoryTokenView) Close() error {
	return nil
}
