package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"keywheel-hq/keywheel/pkg/credential"
)

// backends under test share one behavioral contract; each test runs
// against both the memory and SQLite implementations.
type testBackend struct {
	name   string
	store  Store
	tokens TokenStore
	insert func(t *testing.T, cred *credential.Credential)
}

func newBackends(t *testing.T) []testBackend {
	t.Helper()

	mem := NewMemoryBackend()

	dbPath := filepath.Join(t.TempDir(), "keywheel.db")
	sq, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite backend: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return []testBackend{
		{
			name:   "memory",
			store:  mem,
			tokens: mem.TokenView(),
			insert: func(t *testing.T, cred *credential.Credential) {
				mem.Seed(cred)
			},
		},
		{
			name:   "sqlite",
			store:  sq,
			tokens: sq.TokenView(),
			insert: func(t *testing.T, cred *credential.Credential) {
				if err := sq.Insert(context.Background(), cred); err != nil {
					t.Fatalf("failed to insert credential: %v", err)
				}
			},
		},
	}
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()

	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			b.insert(t, &credential.Credential{
				ID:       "cred-1",
				Secret:   "sk-test",
				Profile:  "default",
				IsActive: true,
			})

			got, err := b.store.GetByID(ctx, "cred-1")
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			if got.Secret != "sk-test" {
				t.Errorf("secret = %q, want %q", got.Secret, "sk-test")
			}
			if !got.IsActive {
				t.Error("expected credential to be active")
			}

			_, err = b.store.GetByID(ctx, "missing")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestListByProfileOrder(t *testing.T) {
	ctx := context.Background()

	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			for _, id := range []string{"a", "b", "c"} {
				b.insert(t, &credential.Credential{
					ID:       id,
					Secret:   "sk-" + id,
					Profile:  "team",
					IsActive: true,
				})
			}
			b.insert(t, &credential.Credential{
				ID: "other", Secret: "sk-other", Profile: "default", IsActive: true,
			})

			creds, err := b.store.ListByProfile(ctx, "team")
			if err != nil {
				t.Fatalf("ListByProfile failed: %v", err)
			}
			if len(creds) != 3 {
				t.Fatalf("got %d credentials, want 3", len(creds))
			}
			for i, want := range []string{"a", "b", "c"} {
				if creds[i].ID != want {
					t.Errorf("creds[%d].ID = %q, want %q", i, creds[i].ID, want)
				}
			}

			empty, err := b.store.ListByProfile(ctx, "nonexistent")
			if err != nil {
				t.Fatalf("ListByProfile failed: %v", err)
			}
			if len(empty) != 0 {
				t.Errorf("expected empty slice for unknown profile, got %d", len(empty))
			}
		})
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	resetAt := time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)

	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			b.insert(t, &credential.Credential{
				ID: "cred-1", Secret: "sk-test", Profile: "default", IsActive: true,
			})

			cred, err := b.store.GetByID(ctx, "cred-1")
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			cred.IsDisabledByRateLimit = true
			cred.RateLimitResetAt = resetAt
			cred.FailureCount = 2
			cred.RequestCount = 41
			cred.DailyRequestsUsed = 7
			cred.LastResetDate = "2026-03-15"

			if err := b.store.Update(ctx, cred); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			got, err := b.store.GetByID(ctx, "cred-1")
			if err != nil {
				t.Fatalf("GetByID after update failed: %v", err)
			}
			if !got.IsDisabledByRateLimit {
				t.Error("expected cooldown flag to persist")
			}
			if !got.RateLimitResetAt.Equal(resetAt) {
				t.Errorf("resetAt = %v, want %v", got.RateLimitResetAt, resetAt)
			}
			if got.FailureCount != 2 || got.RequestCount != 41 || got.DailyRequestsUsed != 7 {
				t.Errorf("counters = (%d, %d, %d), want (2, 41, 7)",
					got.FailureCount, got.RequestCount, got.DailyRequestsUsed)
			}
			if got.LastResetDate != "2026-03-15" {
				t.Errorf("lastResetDate = %q, want %q", got.LastResetDate, "2026-03-15")
			}
		})
	}
}

func TestUpdateMissingCredential(t *testing.T) {
	ctx := context.Background()

	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			err := b.store.Update(ctx, &credential.Credential{ID: "ghost"})
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestCopySemantics(t *testing.T) {
	ctx := context.Background()

	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			b.insert(t, &credential.Credential{
				ID: "cred-1", Secret: "sk-test", Profile: "default", IsActive: true,
			})

			first, err := b.store.GetByID(ctx, "cred-1")
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			first.FailureCount = 99

			second, err := b.store.GetByID(ctx, "cred-1")
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			if second.FailureCount != 0 {
				t.Errorf("mutation of returned credential leaked into backend: failureCount = %d",
					second.FailureCount)
			}
		})
	}
}

func TestTokenStoreLifecycle(t *testing.T) {
	ctx := context.Background()

	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			cred := &credential.TokenCredential{
				ID:              "tok-1",
				Email:           "alice@example.com",
				APIToken:        "at-secret",
				CloudID:         "cloud-1",
				Profile:         "default",
				IsActive:        true,
				DailyTokenLimit: 100000,
			}
			if err := b.tokens.Create(ctx, cred); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			got, err := b.tokens.GetByID(ctx, "tok-1")
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			if got.Email != "alice@example.com" || got.DailyTokenLimit != 100000 {
				t.Errorf("unexpected token credential: %+v", got)
			}

			got.DailyTokensUsed = 42500
			if err := b.tokens.Update(ctx, got); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			listed, err := b.tokens.ListByProfile(ctx, "default")
			if err != nil {
				t.Fatalf("ListByProfile failed: %v", err)
			}
			if len(listed) != 1 || listed[0].DailyTokensUsed != 42500 {
				t.Fatalf("unexpected listing: %+v", listed)
			}

			if err := b.tokens.Delete(ctx, "tok-1"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := b.tokens.GetByID(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}

			// Deleting an absent id is not an error.
			if err := b.tokens.Delete(ctx, "tok-1"); err != nil {
				t.Errorf("Delete of absent id failed: %v", err)
			}
		})
	}
}
