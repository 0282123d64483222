package tokenpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"keywheel-hq/keywheel/pkg/clock"
	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/settings"
	"keywheel-hq/keywheel/pkg/store"
	"keywheel-hq/keywheel/pkg/upstream"
)

// fakeAccount scripts the upstream account endpoints.
type fakeAccount struct {
	usage    map[string]int64
	usageErr error
	authErr  error
	authed   []string
}

func (f *fakeAccount) FetchUsage(ctx context.Context, cred *credential.TokenCredential) (int64, error) {
	if f.usageErr != nil {
		return 0, f.usageErr
	}
	return f.usage[cred.ID], nil
}

func (f *fakeAccount) Authenticate(ctx context.Context, cred *credential.TokenCredential) error {
	f.authed = append(f.authed, cred.ID)
	return f.authErr
}

type fixture struct {
	manager *Manager
	tokens  store.TokenStore
	account *fakeAccount
	clk     *clock.Fake
}

func newFixture(t *testing.T, snap settings.Snapshot) *fixture {
	t.Helper()

	backend := store.NewMemoryBackend()
	tokens := backend.TokenView()
	account := &fakeAccount{usage: make(map[string]int64)}
	clk := clock.NewFake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))

	manager, err := NewManager(ManagerConfig{
		Store:    tokens,
		Account:  account,
		Settings: settings.NewStatic(snap),
		Clock:    clk,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return &fixture{manager: manager, tokens: tokens, account: account, clk: clk}
}

func (f *fixture) seed(t *testing.T, id string, limit, used int64) {
	t.Helper()
	err := f.tokens.Create(context.Background(), &credential.TokenCredential{
		ID:              id,
		Email:           id + "@example.com",
		APIToken:        "at-" + id,
		CloudID:         "cloud-1",
		Profile:         credential.DefaultProfile,
		IsActive:        true,
		DailyTokenLimit: limit,
		DailyTokensUsed: used,
		LastResetDate:   "2026-06-01",
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestAcquireRoundRobin(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.seed(t, "a", 1000, 0)
	f.seed(t, "b", 1000, 0)

	ctx := context.Background()
	first, err := f.manager.Acquire(ctx, "default")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	second, err := f.manager.Acquire(ctx, "default")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if first.Credential.ID == second.Credential.ID {
		t.Errorf("expected rotation, got %q twice", first.Credential.ID)
	}
}

func TestAcquireSkipsExhaustedBudget(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.seed(t, "a", 1000, 1000)
	f.seed(t, "b", 1000, 500)

	lease, err := f.manager.Acquire(context.Background(), "default")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if lease.Credential.ID != "b" {
		t.Errorf("selected %q, want b", lease.Credential.ID)
	}
}

func TestAcquireEmptyPool(t *testing.T) {
	f := newFixture(t, settings.Default())

	_, err := f.manager.Acquire(context.Background(), "default")

	var noEligible *NoEligibleTokenCredentialError
	if !errors.As(err, &noEligible) {
		t.Fatalf("expected NoEligibleTokenCredentialError, got %v", err)
	}
}

func TestDailyTokenRollover(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.seed(t, "a", 1000, 1000)

	ctx := context.Background()
	if _, err := f.manager.Acquire(ctx, "default"); err == nil {
		t.Fatal("exhausted budget must be ineligible")
	}

	f.clk.Advance(24 * time.Hour)
	lease, err := f.manager.Acquire(ctx, "default")
	if err != nil {
		t.Fatalf("Acquire after rollover failed: %v", err)
	}
	if lease.Credential.DailyTokensUsed != 0 {
		t.Errorf("dailyTokensUsed = %d, want 0", lease.Credential.DailyTokensUsed)
	}
}

func TestReportSuccessAccumulatesTokens(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.seed(t, "a", 10000, 0)

	ctx := context.Background()
	lease, err := f.manager.Acquire(ctx, "default")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := f.manager.ReportSuccess(ctx, lease, 1250); err != nil {
		t.Fatalf("ReportSuccess failed: %v", err)
	}

	cred, err := f.tokens.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if cred.DailyTokensUsed != 1250 {
		t.Errorf("dailyTokensUsed = %d, want 1250", cred.DailyTokensUsed)
	}
	if cred.FailureCount != 0 {
		t.Errorf("failureCount = %d, want 0", cred.FailureCount)
	}
}

func TestSyncOverwritesLocalCounter(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.seed(t, "a", 10000, 9999)
	f.account.usage["a"] = 3200

	if err := f.manager.SyncCredential(context.Background(), "a"); err != nil {
		t.Fatalf("SyncCredential failed: %v", err)
	}

	cred, err := f.tokens.GetByID(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	// The upstream number wins even when it disagrees with local
	// accounting in either direction.
	if cred.DailyTokensUsed != 3200 {
		t.Errorf("dailyTokensUsed = %d, want 3200", cred.DailyTokensUsed)
	}
}

func TestSyncProfileContinuesPastFailures(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.seed(t, "a", 10000, 0)
	f.seed(t, "b", 10000, 0)
	f.account.usage["b"] = 700
	f.account.usageErr = nil

	// Make only the first fetch fail.
	calls := 0
	base := f.account
	f.manager.account = accountFunc{
		fetch: func(ctx context.Context, cred *credential.TokenCredential) (int64, error) {
			calls++
			if cred.ID == "a" {
				return 0, errors.New("upstream unreachable")
			}
			return base.FetchUsage(ctx, cred)
		},
		auth: base.Authenticate,
	}

	err := f.manager.SyncProfile(context.Background(), "default")
	if err == nil {
		t.Fatal("expected first error to surface")
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2 (sweep continues past failure)", calls)
	}

	cred, err := f.tokens.GetByID(context.Background(), "b")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if cred.DailyTokensUsed != 700 {
		t.Errorf("b dailyTokensUsed = %d, want 700", cred.DailyTokensUsed)
	}
}

type accountFunc struct {
	fetch func(ctx context.Context, cred *credential.TokenCredential) (int64, error)
	auth  func(ctx context.Context, cred *credential.TokenCredential) error
}

func (a accountFunc) FetchUsage(ctx context.Context, cred *credential.TokenCredential) (int64, error) {
	return a.fetch(ctx, cred)
}

func (a accountFunc) Authenticate(ctx context.Context, cred *credential.TokenCredential) error {
	return a.auth(ctx, cred)
}

func TestCreateRequiresUpstreamAuth(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.account.authErr = &upstream.StatusError{StatusCode: 401, Status: "401 Unauthorized"}

	err := f.manager.Create(context.Background(), &credential.TokenCredential{
		Email:    "alice@example.com",
		APIToken: "at-bad",
	})

	var authFailed *AuthenticationFailedError
	if !errors.As(err, &authFailed) {
		t.Fatalf("expected AuthenticationFailedError, got %v", err)
	}

	listed, err := f.tokens.ListByProfile(context.Background(), "default")
	if err != nil {
		t.Fatalf("ListByProfile failed: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("rejected credential was persisted: %+v", listed)
	}
}

func TestCreatePersistsValidCredential(t *testing.T) {
	f := newFixture(t, settings.Default())

	cred := &credential.TokenCredential{
		Email:           "alice@example.com",
		APIToken:        "at-good",
		DailyTokenLimit: 50000,
	}
	if err := f.manager.Create(context.Background(), cred); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if cred.ID == "" {
		t.Error("expected generated id")
	}

	got, err := f.tokens.GetByID(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.IsActive {
		t.Error("created credential should be active")
	}
}

func TestUpdatePreservesHealthCounters(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.seed(t, "a", 10000, 4000)

	ctx := context.Background()
	existing, err := f.tokens.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	existing.FailureCount = 2
	if err := f.tokens.Update(ctx, existing); err != nil {
		t.Fatalf("seed update failed: %v", err)
	}

	err = f.manager.Update(ctx, &credential.TokenCredential{
		ID:              "a",
		Email:           "alice@example.com",
		APIToken:        "at-rotated",
		Profile:         "default",
		DailyTokenLimit: 20000,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := f.tokens.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.APIToken != "at-rotated" || got.DailyTokenLimit != 20000 {
		t.Errorf("identity fields not updated: %+v", got)
	}
	if got.DailyTokensUsed != 4000 || got.FailureCount != 2 {
		t.Errorf("health counters not preserved: used=%d failures=%d",
			got.DailyTokensUsed, got.FailureCount)
	}
}

func TestTestCredential(t *testing.T) {
	f := newFixture(t, settings.Default())
	f.seed(t, "a", 10000, 500)

	ctx := context.Background()
	valid, err := f.manager.TestCredential(ctx, "a")
	if err != nil {
		t.Fatalf("TestCredential failed: %v", err)
	}
	if !valid {
		t.Error("expected valid probe")
	}

	f.account.authErr = &upstream.StatusError{StatusCode: 401, Status: "401 Unauthorized"}
	valid, err = f.manager.TestCredential(ctx, "a")
	if err != nil {
		t.Fatalf("TestCredential failed: %v", err)
	}
	if valid {
		t.Error("expected invalid probe")
	}

	// Probing never touches quota or health state.
	cred, err := f.tokens.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if cred.DailyTokensUsed != 500 || cred.FailureCount != 0 || !cred.IsActive {
		t.Errorf("probe mutated credential: %+v", cred)
	}
}

func TestReportErrorCooldownAndEscalation(t *testing.T) {
	snap := settings.Default()
	snap.MaxFailureCount = 2
	snap.RateLimitCooldown = time.Minute
	f := newFixture(t, snap)
	f.seed(t, "a", 10000, 0)

	ctx := context.Background()
	lease, err := f.manager.Acquire(ctx, "default")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	rateLimited, err := f.manager.ReportError(ctx, lease,
		&upstream.StatusError{StatusCode: 429, Status: "429 Too Many Requests"})
	if err != nil {
		t.Fatalf("ReportError failed: %v", err)
	}
	if !rateLimited {
		t.Fatal("expected rate limit classification")
	}
	if _, err := f.manager.Acquire(ctx, "default"); err == nil {
		t.Fatal("expected cooldown to exclude credential")
	}

	f.clk.Advance(time.Minute)
	lease, err = f.manager.Acquire(ctx, "default")
	if err != nil {
		t.Fatalf("Acquire after cooldown failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.manager.ReportError(ctx, lease,
			&upstream.StatusError{StatusCode: 500, Status: "500 Internal Server Error"}); err != nil {
			t.Fatalf("ReportError failed: %v", err)
		}
	}
	cred, err := f.tokens.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if cred.IsActive {
		t.Error("credential should be deactivated after 2 failures")
	}
}
