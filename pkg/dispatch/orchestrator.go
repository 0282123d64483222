package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"keywheel-hq/keywheel/pkg/clock"
	"keywheel-hq/keywheel/pkg/pool"
	"keywheel-hq/keywheel/pkg/settings"
	"keywheel-hq/keywheel/pkg/upstream"
)

// Backoff constants: delay before attempt n+1 is
// min(baseDelay * 2^(n-1), maxDelay), n counted from 1.
const (
	baseDelay = 1000 * time.Millisecond
	maxDelay  = 10000 * time.Millisecond
)

// Caller performs one upstream exchange. *upstream.Client implements
// it.
type Caller interface {
	ChatCompletions(ctx context.Context, secret string, body []byte, header http.Header) (*upstream.Response, error)
}

// Recorder receives the outcome of each upstream attempt. Optional;
// pkg/history provides a durable implementation.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Entry describes one completed upstream attempt.
type Entry struct {
	Profile      string
	CredentialID string
	LeaseID      string
	Attempt      int
	Outcome      string
	StatusCode   int
	Duration     time.Duration
	At           time.Time
}

// Request is one inbound chat completion to dispatch.
type Request struct {
	// Profile selects the credential pool. Empty means the default
	// profile.
	Profile string

	// Body is the raw request payload, forwarded unchanged.
	Body []byte

	// Header carries client headers to forward upstream.
	Header http.Header
}

// Result is a successful dispatch.
type Result struct {
	Response     *upstream.Response
	Attempts     int
	CredentialID string
}

// OrchestratorConfig configures an orchestrator.
type OrchestratorConfig struct {
	// Pool supplies and accounts credentials. Required.
	Pool *pool.Manager

	// Caller performs the upstream exchange. Required.
	Caller Caller

	// Settings supplies maxRetries per request. Required.
	Settings settings.Provider

	// Clock is the time source for attempt timestamps. Default:
	// clock.System.
	Clock clock.Clock

	// Recorder receives attempt outcomes. Optional.
	Recorder Recorder

	// Logger receives dispatch events. Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives dispatch counters. Optional.
	Metrics *Metrics
}

// Orchestrator runs the attempt/backoff state machine for inbound
// requests.
type Orchestrator struct {
	pool     *pool.Manager
	caller   Caller
	settings settings.Provider
	clk      clock.Clock
	recorder Recorder
	logger   *slog.Logger
	metrics  *Metrics

	// wait is swapped out by tests to observe backoff without
	// sleeping.
	wait func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Caller == nil {
		return nil, fmt.Errorf("caller is required")
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

	o := &Orchestrator{
		pool:     cfg.Pool,
		caller:   cfg.Caller,
		settings: cfg.Settings,
		clk:      cfg.Clock,
		recorder: cfg.Recorder,
		logger:   cfg.Logger.With("component", "dispatch"),
		metrics:  cfg.Metrics,
	}
	o.wait = o.sleep
	return o, nil
}

// Execute dispatches the request, retrying transient failures until it
// succeeds, the retry budget runs out, or the context is cancelled.
//
// Retryable failures are credential rejections (401/403/429), upstream
// 5xx responses and transport timeouts. Everything else, including a
// pool with no eligible credential, terminates immediately.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	snap := o.settings.Read()
	maxRetries := snap.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, attemptErr := o.attempt(ctx, req, attempt)
		if attemptErr == nil {
			o.metrics.recordRequest(req.Profile, "success", attempt)
			return result, nil
		}
		lastErr = attemptErr

		if !retryable(attemptErr) {
			o.metrics.recordRequest(req.Profile, "failed", attempt)
			return nil, attemptErr
		}
		if attempt == maxRetries {
			break
		}

		delay := backoffDelay(attempt)
		o.logger.Info("retrying after failed attempt",
			"profile", req.Profile,
			"attempt", attempt,
			"max_retries", maxRetries,
			"backoff_ms", delay.Milliseconds(),
			"error", attemptErr)
		o.metrics.recordRetry(req.Profile)
		if err := o.wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	o.metrics.recordRequest(req.Profile, "exhausted", maxRetries)
	return nil, &MaxRetriesExceeded{Attempts: maxRetries, Err: lastErr}
}

// attempt performs one acquire/call/report round. The connection count
// covers exactly the upstream exchange.
func (o *Orchestrator) attempt(ctx context.Context, req Request, attempt int) (*Result, error) {
	lease, err := o.pool.Acquire(ctx, req.Profile)
	if err != nil {
		// Pool exhaustion is terminal: acquiring again in a later
		// attempt would loop on the same empty pool.
		return nil, err
	}

	tracker := o.pool.Connections()
	credID := lease.Credential.ID

	start := o.clk.Now()
	tracker.Increment(credID)
	resp, callErr := o.caller.ChatCompletions(ctx, lease.Credential.Secret, req.Body, req.Header)
	tracker.Decrement(credID)
	duration := o.clk.Now().Sub(start)

	if callErr == nil {
		if err := o.pool.ReportSuccess(ctx, lease); err != nil {
			o.logger.Warn("failed to report success", "credential_id", credID, "error", err)
		}
		o.record(ctx, req.Profile, lease, attempt, "success", resp.StatusCode, duration)
		return &Result{Response: resp, Attempts: attempt, CredentialID: credID}, nil
	}

	rateLimited, repErr := o.pool.ReportError(ctx, lease, callErr)
	if repErr != nil {
		o.logger.Warn("failed to report error", "credential_id", credID, "error", repErr)
	}

	classified := classify(callErr, credID, rateLimited)
	o.record(ctx, req.Profile, lease, attempt, outcomeLabel(classified), statusCodeOf(callErr), duration)
	return nil, classified
}

func (o *Orchestrator) record(ctx context.Context, profile string, lease *pool.Lease, attempt int, outcome string, status int, duration time.Duration) {
	if o.recorder == nil {
		return
	}
	o.recorder.Record(ctx, Entry{
		Profile:      profile,
		CredentialID: lease.Credential.ID,
		LeaseID:      lease.ID,
		Attempt:      attempt,
		Outcome:      outcome,
		StatusCode:   status,
		Duration:     duration,
		At:           o.clk.Now(),
	})
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffDelay returns the wait before the attempt after n.
func backoffDelay(attempt int) time.Duration {
	delay := baseDelay << (attempt - 1)
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}

// classify maps a raw call error to the dispatch error taxonomy.
func classify(err error, credentialID string, rateLimited bool) error {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case rateLimited || statusErr.IsRateLimit():
			return &CredentialError{
				StatusCode:   statusErr.StatusCode,
				CredentialID: credentialID,
				Err:          err,
			}
		case statusErr.IsServerError():
			return &UpstreamServerError{StatusCode: statusErr.StatusCode, Err: err}
		default:
			// Client-caused 4xx passes through untouched.
			return err
		}
	}

	var timeoutErr *upstream.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &UpstreamTimeoutError{Err: err}
	}
	return err
}

func retryable(err error) bool {
	var (
		credErr    *CredentialError
		serverErr  *UpstreamServerError
		timeoutErr *UpstreamTimeoutError
	)
	return errors.As(err, &credErr) || errors.As(err, &serverErr) || errors.As(err, &timeoutErr)
}

func outcomeLabel(err error) string {
	var (
		credErr    *CredentialError
		serverErr  *UpstreamServerError
		timeoutErr *UpstreamTimeoutError
	)
	switch {
	case errors.As(err, &credErr):
		return "rate_limited"
	case errors.As(err, &serverErr):
		return "server_error"
	case errors.As(err, &timeoutErr):
		return "timeout"
	default:
		return "error"
	}
}

func statusCodeOf(err error) int {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
