package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// maxErrorBodyBytes bounds how much of an error response body is
// retained for pass-through and logging.
const maxErrorBodyBytes = 64 * 1024

// ClientConfig configures the upstream client.
type ClientConfig struct {
	// BaseURL is the upstream API root, e.g. "https://api.openai.com".
	BaseURL string

	// Timeout is the per-request deadline. Default: 120 seconds, sized
	// for long completion responses.
	Timeout time.Duration

	// MaxIdleConns caps pooled idle connections. Default: 100.
	MaxIdleConns int

	// MaxIdleConnsPerHost caps idle connections per upstream host.
	// Default: 32.
	MaxIdleConnsPerHost int

	// Logger receives request-level debug logs. Default: slog.Default().
	Logger *slog.Logger
}

// Client performs single HTTP exchanges against the upstream API using
// a shared pooled transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Response is a completed upstream exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewClient creates a client with a pooled transport.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: cfg.Logger.With("component", "upstream"),
	}, nil
}

// ChatCompletions posts a raw chat completion body using the given
// credential secret as a bearer token. Returns the response for any 2xx
// status; non-2xx statuses become a StatusError carrying the body, and
// transport failures become TimeoutError or TransportError.
func (c *Client) ChatCompletions(ctx context.Context, secret string, body []byte, header http.Header) (*Response, error) {
	return c.post(ctx, "/v1/chat/completions", secret, body, header)
}

func (c *Client) post(ctx context.Context, path, secret string, body []byte, header http.Header) (*Response, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}

	// Forward caller headers first so auth and content type below
	// always win.
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, classifyTransportError(url, err)
		}
		c.logger.Debug("upstream request completed",
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       respBody,
		}, nil
	}

	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	c.logger.Debug("upstream request failed",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return nil, &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       errBody,
	}
}

// classifyTransportError distinguishes timeouts from other network
// failures so the dispatcher can retry the former.
func classifyTransportError(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: url, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{URL: url, Err: err}
	}
	return &TransportError{URL: url, Err: err}
}
