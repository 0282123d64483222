package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"keywheel-hq/keywheel/pkg/credential"
)

// AccountClient talks to the upstream account endpoints for token
// credentials: usage reporting and authentication checks. Token usage
// is computed upstream, so the pool treats these responses as the
// source of truth.
type AccountClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// AccountClientConfig configures an account client.
type AccountClientConfig struct {
	// BaseURL is the upstream account API root.
	BaseURL string

	// Timeout is the per-request deadline. Default: 30 seconds.
	Timeout time.Duration

	// Logger receives request-level debug logs. Default:
	// slog.Default().
	Logger *slog.Logger
}

// NewAccountClient creates an account client.
func NewAccountClient(cfg AccountClientConfig) (*AccountClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("account base URL cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &AccountClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    16,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		logger: cfg.Logger.With("component", "upstream-account"),
	}, nil
}

type usageResponse struct {
	TokensUsed int64 `json:"tokensUsed"`
}

// FetchUsage returns the upstream-reported tokens consumed today by
// the credential.
func (c *AccountClient) FetchUsage(ctx context.Context, cred *credential.TokenCredential) (int64, error) {
	resp, err := c.get(ctx, "/v1/account/usage", cred)
	if err != nil {
		return 0, err
	}

	var usage usageResponse
	if err := json.Unmarshal(resp, &usage); err != nil {
		return 0, fmt.Errorf("failed to decode usage response: %w", err)
	}
	if usage.TokensUsed < 0 {
		return 0, fmt.Errorf("upstream reported negative usage %d", usage.TokensUsed)
	}
	c.logger.Debug("fetched upstream usage",
		"credential_id", cred.ID, "tokens_used", usage.TokensUsed)
	return usage.TokensUsed, nil
}

// Authenticate verifies the credential is accepted by the upstream. It
// performs the smallest call that exercises authentication and nothing
// else.
func (c *AccountClient) Authenticate(ctx context.Context, cred *credential.TokenCredential) error {
	_, err := c.get(ctx, "/v1/account/me", cred)
	return err
}

func (c *AccountClient) get(ctx context.Context, path string, cred *credential.TokenCredential) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build account request: %w", err)
	}
	req.SetBasicAuth(cred.Email, cred.APIToken)
	if cred.CloudID != "" {
		req.Header.Set("X-Cloud-Id", cred.CloudID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(url, err)
	}
	return body, nil
}
