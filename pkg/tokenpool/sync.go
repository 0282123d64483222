package tokenpool

import (
	"context"
	"fmt"
)

// SyncCredential refreshes one credential's dailyTokensUsed from the
// upstream usage endpoint. The upstream value always wins: token
// consumption is computed upstream per request, so the local counter is
// only an estimate between syncs.
func (m *Manager) SyncCredential(ctx context.Context, id string) error {
	cred, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	usage, err := m.account.FetchUsage(ctx, cred)
	if err != nil {
		return fmt.Errorf("failed to fetch usage for %s: %w", id, err)
	}

	ps := m.profile(cred.EffectiveProfile())
	ps.mu.Lock()
	defer ps.mu.Unlock()

	// Re-read under the profile lock so the overwrite lands on the
	// latest record.
	cred, err = m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	previous := cred.DailyTokensUsed
	cred.DailyTokensUsed = usage
	if err := m.store.Update(ctx, cred); err != nil {
		return fmt.Errorf("failed to persist synced usage: %w", err)
	}

	m.logger.Debug("synced token usage",
		"credential_id", id, "previous", previous, "upstream", usage)
	return nil
}

// SyncProfile refreshes every credential in the profile. Individual
// failures are logged and skipped so one unreachable credential does
// not stall the rest; the first error is returned after the sweep.
func (m *Manager) SyncProfile(ctx context.Context, profile string) error {
	creds, err := m.store.ListByProfile(ctx, profile)
	if err != nil {
		return fmt.Errorf("failed to list token credentials: %w", err)
	}

	var firstErr error
	for _, cred := range creds {
		if err := m.SyncCredential(ctx, cred.ID); err != nil {
			m.logger.Warn("usage sync failed",
				"profile", profile, "credential_id", cred.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
