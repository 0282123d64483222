package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"keywheel-hq/keywheel/pkg/clock"
	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/pool/connections"
	"keywheel-hq/keywheel/pkg/settings"
	"keywheel-hq/keywheel/pkg/store"
	"keywheel-hq/keywheel/pkg/upstream"
)

// Lease is one granted credential acquisition. The lease id correlates
// the acquire with the eventual ReportSuccess or ReportError in logs.
type Lease struct {
	ID         string
	Profile    string
	Credential *credential.Credential
}

// ManagerConfig configures a pool manager.
type ManagerConfig struct {
	// Store is the credential source of record. Required.
	Store store.Store

	// Settings supplies the live settings snapshot. Required.
	Settings settings.Provider

	// Clock is the time source. Default: clock.System.
	Clock clock.Clock

	// Tracker counts in-flight requests per credential. Default: a
	// fresh tracker.
	Tracker *connections.Tracker

	// Logger receives pool events. Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives pool counters. Optional; nil records nothing.
	Metrics *Metrics
}

// Manager selects credentials for outbound requests and accounts for
// their outcomes. Selection state (cursor, rotation streaks) is kept
// per profile so profiles never contend with each other.
type Manager struct {
	store    store.Store
	settings settings.Provider
	clk      clock.Clock
	tracker  *connections.Tracker
	logger   *slog.Logger
	metrics  *Metrics

	mu       sync.Mutex
	profiles map[string]*profileState
}

// profileState is the per-profile selection state. Its mutex serializes
// acquire and report calls for one profile.
type profileState struct {
	mu sync.Mutex

	// lastID is the round-robin cursor: the id last returned.
	lastID string

	// streak counts consecutive successes per credential id.
	streak map[string]int

	// resting holds credentials sitting out the current rotation
	// cycle after completing a success streak.
	resting map[string]bool
}

// NewManager creates a pool manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings provider is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Tracker == nil {
		cfg.Tracker = connections.NewTracker()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		store:    cfg.Store,
		settings: cfg.Settings,
		clk:      cfg.Clock,
		tracker:  cfg.Tracker,
		logger:   cfg.Logger.With("component", "pool"),
		metrics:  cfg.Metrics,
		profiles: make(map[string]*profileState),
	}, nil
}

// Connections returns the tracker shared with the dispatcher.
func (m *Manager) Connections() *connections.Tracker {
	return m.tracker
}

func (m *Manager) profile(name string) *profileState {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.profiles[name]
	if !ok {
		ps = &profileState{
			streak:  make(map[string]int),
			resting: make(map[string]bool),
		}
		m.profiles[name] = ps
	}
	return ps
}

// Acquire returns one eligible credential for the profile, or a
// NoEligibleCredentialError when none can serve.
//
// Evaluating eligibility performs lazy housekeeping: expired rate limit
// cooldowns are cleared and daily counters are rolled over as a side
// effect of the read. Housekeeping is idempotent, so doing it on every
// acquire is safe.
func (m *Manager) Acquire(ctx context.Context, profile string) (*Lease, error) {
	if profile == "" {
		profile = credential.DefaultProfile
	}
	snap := m.settings.Read()

	ps := m.profile(profile)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	all, err := m.store.ListByProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	now := m.clk.Now()
	for _, cred := range all {
		if cred.Housekeep(now) {
			if err := m.store.Update(ctx, cred); err != nil {
				m.logger.Warn("failed to persist credential housekeeping",
					"credential_id", cred.ID, "error", err)
			}
		}
	}

	var eligible []*credential.Credential
	noneEligible := &NoEligibleCredentialError{Profile: profile, Total: len(all)}
	for _, cred := range all {
		if cred.Eligible() {
			eligible = append(eligible, cred)
			continue
		}
		switch {
		case !cred.IsActive:
			noneEligible.Inactive++
		case cred.IsDisabledByRateLimit:
			noneEligible.CoolingDown++
		default:
			noneEligible.Exhausted++
		}
	}
	if len(eligible) == 0 {
		m.metrics.recordAcquireFailure(profile)
		m.logger.Warn("no eligible credential",
			"profile", profile,
			"total", noneEligible.Total,
			"inactive", noneEligible.Inactive,
			"cooling_down", noneEligible.CoolingDown,
			"exhausted", noneEligible.Exhausted)
		return nil, noneEligible
	}

	candidates := m.excludeResting(ps, eligible)

	strat, err := newStrategy(snap.LoadBalancingStrategy, m.tracker)
	if err != nil {
		return nil, err
	}
	chosen := strat.Select(Selection{
		All:        all,
		Candidates: candidates,
		LastID:     ps.lastID,
	})
	ps.lastID = chosen.ID

	lease := &Lease{
		ID:         uuid.NewString(),
		Profile:    profile,
		Credential: chosen,
	}
	m.metrics.recordAcquire(profile, string(strat.Name()), len(eligible))
	m.logger.Debug("credential acquired",
		"profile", profile,
		"credential_id", chosen.ID,
		"lease_id", lease.ID,
		"strategy", strat.Name(),
		"eligible", len(eligible))
	return lease, nil
}

// excludeResting removes credentials that completed a rotation streak.
// When the exclusion would empty the pool the cycle is over: everyone
// rested, so the resting set clears and all eligible credentials are
// back in play.
func (m *Manager) excludeResting(ps *profileState, eligible []*credential.Credential) []*credential.Credential {
	if len(ps.resting) == 0 {
		return eligible
	}

	var candidates []*credential.Credential
	for _, cred := range eligible {
		if !ps.resting[cred.ID] {
			candidates = append(candidates, cred)
		}
	}
	if len(candidates) > 0 {
		return candidates
	}

	ps.resting = make(map[string]bool)
	return eligible
}

// ReportSuccess records a successful request on the leased credential:
// failure streak cleared, usage counters advanced, last use stamped.
func (m *Manager) ReportSuccess(ctx context.Context, lease *Lease) error {
	snap := m.settings.Read()

	ps := m.profile(lease.Profile)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	cred, err := m.store.GetByID(ctx, lease.Credential.ID)
	if err != nil {
		return fmt.Errorf("failed to load credential for success report: %w", err)
	}

	cred.FailureCount = 0
	cred.RequestCount++
	cred.DailyRequestsUsed++
	cred.LastUsed = m.clk.Now()
	if err := m.store.Update(ctx, cred); err != nil {
		return fmt.Errorf("failed to persist success report: %w", err)
	}

	if snap.KeyRotationRequestCount > 0 {
		ps.streak[cred.ID]++
		if ps.streak[cred.ID] >= snap.KeyRotationRequestCount {
			ps.resting[cred.ID] = true
			delete(ps.streak, cred.ID)
			m.logger.Debug("credential entering rotation rest",
				"profile", lease.Profile, "credential_id", cred.ID)
		}
	}

	m.metrics.recordOutcome(lease.Profile, "success")
	return nil
}

// ReportError records a failed request on the leased credential and
// returns whether the failure was a rate limit class rejection. A rate
// limited credential goes on cooldown immediately; any other failure
// advances the failure count and deactivates the credential once it
// reaches the configured maximum.
//
// The returned flag tells the dispatcher a different credential may
// succeed right away, without waiting out a backoff tier.
func (m *Manager) ReportError(ctx context.Context, lease *Lease, cause error) (bool, error) {
	snap := m.settings.Read()

	ps := m.profile(lease.Profile)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	cred, err := m.store.GetByID(ctx, lease.Credential.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load credential for error report: %w", err)
	}

	delete(ps.streak, cred.ID)

	if isRateLimitError(cause) {
		cred.IsDisabledByRateLimit = true
		cred.RateLimitResetAt = m.clk.Now().Add(snap.RateLimitCooldown)
		if err := m.store.Update(ctx, cred); err != nil {
			return true, fmt.Errorf("failed to persist cooldown: %w", err)
		}
		m.metrics.recordOutcome(lease.Profile, "rate_limited")
		m.metrics.recordCooldown(lease.Profile)
		m.logger.Warn("credential rate limited, entering cooldown",
			"profile", lease.Profile,
			"credential_id", cred.ID,
			"lease_id", lease.ID,
			"reset_at", cred.RateLimitResetAt)
		return true, nil
	}

	cred.FailureCount++
	deactivated := snap.MaxFailureCount > 0 && cred.FailureCount >= snap.MaxFailureCount
	if deactivated {
		cred.IsActive = false
	}
	if err := m.store.Update(ctx, cred); err != nil {
		return false, fmt.Errorf("failed to persist error report: %w", err)
	}

	m.metrics.recordOutcome(lease.Profile, "failure")
	if deactivated {
		m.metrics.recordDeactivation(lease.Profile)
		m.logger.Warn("credential deactivated after repeated failures",
			"profile", lease.Profile,
			"credential_id", cred.ID,
			"failure_count", cred.FailureCount)
	} else {
		m.logger.Debug("credential failure recorded",
			"profile", lease.Profile,
			"credential_id", cred.ID,
			"failure_count", cred.FailureCount)
	}
	return false, nil
}

// Reactivate restores a deactivated or cooling-down credential to
// service and clears its failure history. Operator action; deactivation
// is never undone automatically.
func (m *Manager) Reactivate(ctx context.Context, id string) error {
	cred, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	ps := m.profile(cred.EffectiveProfile())
	ps.mu.Lock()
	defer ps.mu.Unlock()

	cred.IsActive = true
	cred.IsDisabledByRateLimit = false
	cred.RateLimitResetAt = time.Time{}
	cred.FailureCount = 0
	if err := m.store.Update(ctx, cred); err != nil {
		return fmt.Errorf("failed to reactivate credential: %w", err)
	}

	m.logger.Info("credential reactivated", "credential_id", id)
	return nil
}

// Stats summarizes the current health of one profile's pool.
type Stats struct {
	Profile           string `json:"profile"`
	Total             int    `json:"total"`
	Eligible          int    `json:"eligible"`
	Inactive          int    `json:"inactive"`
	CoolingDown       int    `json:"coolingDown"`
	Exhausted         int    `json:"exhausted"`
	ActiveConnections int64  `json:"activeConnections"`
}

// Stats reports pool health for the profile. Housekeeping runs as part
// of the read, so the counts reflect expired cooldowns and day
// rollovers.
func (m *Manager) Stats(ctx context.Context, profile string) (*Stats, error) {
	if profile == "" {
		profile = credential.DefaultProfile
	}

	ps := m.profile(profile)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	all, err := m.store.ListByProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	now := m.clk.Now()
	stats := &Stats{Profile: profile, Total: len(all)}
	for _, cred := range all {
		if cred.Housekeep(now) {
			if err := m.store.Update(ctx, cred); err != nil {
				m.logger.Warn("failed to persist credential housekeeping",
					"credential_id", cred.ID, "error", err)
			}
		}
		switch {
		case cred.Eligible():
			stats.Eligible++
		case !cred.IsActive:
			stats.Inactive++
		case cred.IsDisabledByRateLimit:
			stats.CoolingDown++
		default:
			stats.Exhausted++
		}
		stats.ActiveConnections += m.tracker.Count(cred.ID)
	}
	return stats, nil
}

// isRateLimitError reports whether the upstream failure is in the rate
// limit class (401, 403, 429).
func isRateLimitError(err error) bool {
	var statusErr *upstream.StatusError
	return errors.As(err, &statusErr) && statusErr.IsRateLimit()
}
