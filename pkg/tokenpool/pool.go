package tokenpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"keywheel-hq/keywheel/pkg/clock"
	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/settings"
	"keywheel-hq/keywheel/pkg/store"
	"keywheel-hq/keywheel/pkg/upstream"
)

// AccountAPI is the upstream surface the token pool needs:
// authoritative usage numbers and an authentication check.
// *upstream.AccountClient implements it.
type AccountAPI interface {
	FetchUsage(ctx context.Context, cred *credential.TokenCredential) (int64, error)
	Authenticate(ctx context.Context, cred *credential.TokenCredential) error
}

// ManagerConfig configures a token pool manager.
type ManagerConfig struct {
	// Store is the token credential source of record. Required.
	Store store.TokenStore

	// Account talks to the upstream account endpoints. Required.
	Account AccountAPI

	// Settings supplies cooldown and failure thresholds. Required.
	Settings settings.Provider

	// Clock is the time source. Default: clock.System.
	Clock clock.Clock

	// Logger receives pool events. Default: slog.Default().
	Logger *slog.Logger
}

// Manager selects token credentials and accounts for their usage and
// health.
type Manager struct {
	store    store.TokenStore
	account  AccountAPI
	settings settings.Provider
	clk      clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	profiles map[string]*profileState
}

// profileState serializes selection and reporting for one profile.
type profileState struct {
	mu     sync.Mutex
	lastID string
}

// NewManager creates a token pool manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.Account == nil {
		return nil, fmt.Errorf("account client is required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings provider is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		store:    cfg.Store,
		account:  cfg.Account,
		settings: cfg.Settings,
		clk:      cfg.Clock,
		logger:   cfg.Logger.With("component", "tokenpool"),
		profiles: make(map[string]*profileState),
	}, nil
}

func (m *Manager) profile(name string) *profileState {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.profiles[name]
	if !ok {
		ps = &profileState{}
		m.profiles[name] = ps
	}
	return ps
}

// Lease is one granted token credential acquisition.
type Lease struct {
	ID         string
	Profile    string
	Credential *credential.TokenCredential
}

// Acquire returns one eligible token credential for the profile using
// round-robin order, performing the same lazy housekeeping as the
// primary pool.
func (m *Manager) Acquire(ctx context.Context, profile string) (*Lease, error) {
	if profile == "" {
		profile = credential.DefaultProfile
	}

	ps := m.profile(profile)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	all, err := m.store.ListByProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list token credentials: %w", err)
	}

	now := m.clk.Now()
	var eligible []*credential.TokenCredential
	for _, cred := range all {
		if cred.Housekeep(now) {
			if err := m.store.Update(ctx, cred); err != nil {
				m.logger.Warn("failed to persist token credential housekeeping",
					"credential_id", cred.ID, "error", err)
			}
		}
		if cred.Eligible() {
			eligible = append(eligible, cred)
		}
	}
	if len(eligible) == 0 {
		return nil, &NoEligibleTokenCredentialError{Profile: profile, Total: len(all)}
	}

	chosen := nextAfter(eligible, ps.lastID)
	ps.lastID = chosen.ID

	lease := &Lease{ID: uuid.NewString(), Profile: profile, Credential: chosen}
	m.logger.Debug("token credential acquired",
		"profile", profile, "credential_id", chosen.ID, "lease_id", lease.ID)
	return lease, nil
}

// nextAfter returns the candidate following lastID in list order,
// wrapping around; the first candidate when the cursor is unset or
// gone.
func nextAfter(candidates []*credential.TokenCredential, lastID string) *credential.TokenCredential {
	if lastID == "" {
		return candidates[0]
	}
	for i, cred := range candidates {
		if cred.ID == lastID {
			return candidates[(i+1)%len(candidates)]
		}
	}
	return candidates[0]
}

// ReportSuccess records a completed request that consumed tokensUsed
// tokens. The local counter advances immediately as an estimate; the
// next SyncUsage replaces it with the upstream number.
func (m *Manager) ReportSuccess(ctx context.Context, lease *Lease, tokensUsed int64) error {
	ps := m.profile(lease.Profile)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	cred, err := m.store.GetByID(ctx, lease.Credential.ID)
	if err != nil {
		return fmt.Errorf("failed to load token credential for success report: %w", err)
	}

	cred.FailureCount = 0
	if tokensUsed > 0 {
		cred.DailyTokensUsed += tokensUsed
	}
	cred.LastUsed = m.clk.Now()
	if err := m.store.Update(ctx, cred); err != nil {
		return fmt.Errorf("failed to persist token success report: %w", err)
	}
	return nil
}

// ReportError mirrors the primary pool's failure handling: rate limit
// class failures put the credential on cooldown, anything else advances
// the failure count toward deactivation.
func (m *Manager) ReportError(ctx context.Context, lease *Lease, cause error) (bool, error) {
	snap := m.settings.Read()

	ps := m.profile(lease.Profile)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	cred, err := m.store.GetByID(ctx, lease.Credential.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load token credential for error report: %w", err)
	}

	var statusErr *upstream.StatusError
	if errors.As(cause, &statusErr) && statusErr.IsRateLimit() {
		cred.IsDisabledByRateLimit = true
		cred.RateLimitResetAt = m.clk.Now().Add(snap.RateLimitCooldown)
		if err := m.store.Update(ctx, cred); err != nil {
			return true, fmt.Errorf("failed to persist token cooldown: %w", err)
		}
		m.logger.Warn("token credential rate limited, entering cooldown",
			"profile", lease.Profile,
			"credential_id", cred.ID,
			"reset_at", cred.RateLimitResetAt)
		return true, nil
	}

	cred.FailureCount++
	if snap.MaxFailureCount > 0 && cred.FailureCount >= snap.MaxFailureCount {
		cred.IsActive = false
		m.logger.Warn("token credential deactivated after repeated failures",
			"profile", lease.Profile,
			"credential_id", cred.ID,
			"failure_count", cred.FailureCount)
	}
	if err := m.store.Update(ctx, cred); err != nil {
		return false, fmt.Errorf("failed to persist token error report: %w", err)
	}
	return false, nil
}

// TestCredential checks that the stored credential still authenticates
// against the upstream. It never touches quota or health counters; a
// failing probe is information for the operator, not a strike against
// the credential.
func (m *Manager) TestCredential(ctx context.Context, id string) (bool, error) {
	cred, err := m.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	if err := m.account.Authenticate(ctx, cred); err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) && statusErr.IsRateLimit() {
			return false, nil
		}
		return false, fmt.Errorf("credential probe failed: %w", err)
	}
	return true, nil
}

// Create validates the credential against the upstream and persists it.
// A rejection surfaces as AuthenticationFailedError and nothing is
// stored.
func (m *Manager) Create(ctx context.Context, cred *credential.TokenCredential) error {
	if cred.Email == "" || cred.APIToken == "" {
		return fmt.Errorf("email and api token are required")
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}

	if err := m.authenticate(ctx, cred); err != nil {
		return err
	}

	cred.IsActive = true
	cred.LastResetDate = credential.DayOf(m.clk.Now())
	if err := m.store.Create(ctx, cred); err != nil {
		return fmt.Errorf("failed to persist token credential: %w", err)
	}

	m.logger.Info("token credential created",
		"credential_id", cred.ID, "profile", cred.EffectiveProfile())
	return nil
}

// Update validates the new secret material against the upstream before
// persisting the changed record.
func (m *Manager) Update(ctx context.Context, cred *credential.TokenCredential) error {
	existing, err := m.store.GetByID(ctx, cred.ID)
	if err != nil {
		return err
	}

	if err := m.authenticate(ctx, cred); err != nil {
		return err
	}

	// Health counters carry over; only identity and budget fields
	// change through Update.
	cred.IsActive = existing.IsActive
	cred.IsDisabledByRateLimit = existing.IsDisabledByRateLimit
	cred.RateLimitResetAt = existing.RateLimitResetAt
	cred.FailureCount = existing.FailureCount
	cred.DailyTokensUsed = existing.DailyTokensUsed
	cred.LastResetDate = existing.LastResetDate
	cred.LastUsed = existing.LastUsed

	if err := m.store.Update(ctx, cred); err != nil {
		return fmt.Errorf("failed to persist token credential update: %w", err)
	}

	m.logger.Info("token credential updated", "credential_id", cred.ID)
	return nil
}

// Delete removes a token credential.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

func (m *Manager) authenticate(ctx context.Context, cred *credential.TokenCredential) error {
	if err := m.account.Authenticate(ctx, cred); err != nil {
		return &AuthenticationFailedError{Email: cred.Email, Err: err}
	}
	return nil
}
