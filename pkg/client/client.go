package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/psantana5/timinghooks/pkg/api"
	"github.com/psantana5/timinghooks/pkg/retry"
	"github.com/psantana5/timinghooks/pkg/store"
	"github.com/psantana5/timinghooks/pkg/timers"
	"github.com/psantana5/timinghooks/pkg/tracing"
)

// Client talks to a timinghooks collector
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	retry      retry.Config
}

// StatusError is a non-success response from the collector
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// notApplied reports whether a failed request certainly never reached the
// handler: the connection was never made, or the collector turned it away
// before handling it.
func notApplied(err error) bool {
	if retry.IsDialError(err) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// policy returns the retry policy for method. POST merges records and
// creates snapshots, so it is only repeated when the first attempt was not
// applied.
func (c *Client) policy(method string) retry.Config {
	cfg := c.retry
	if method == http.MethodGet || method == http.MethodDelete {
		return cfg
	}
	retryable := cfg.Retryable
	cfg.Retryable = func(err error) bool {
		return notApplied(err) && (retryable == nil || retryable(err))
	}
	return cfg
}

// Option configures a Client
type Option func(*Client)

// WithAPIKey sets the bearer key sent with every request
func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithRetry replaces the default retry policy
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithTLS sets the TLS configuration of the transport
func WithTLS(cfg *tls.Config) Option {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{TLSClientConfig: cfg}
	}
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the collector at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PushSnapshot stores state on the collector as a snapshot
func (c *Client) PushSnapshot(ctx context.Context, label, host string, state timers.State) (*store.SnapshotInfo, error) {
	if state == nil {
		state = timers.State{}
	}
	var info store.SnapshotInfo
	req := api.CreateSnapshotRequest{Label: label, Host: host, State: state}
	if err := c.do(ctx, http.MethodPost, "/snapshots", req, &info); err != nil {
		return nil, fmt.Errorf("failed to push snapshot: %w", err)
	}
	return &info, nil
}

// MergeState appends state to the collector's live accumulator
func (c *Client) MergeState(ctx context.Context, state timers.State) error {
	if err := c.do(ctx, http.MethodPost, "/state/merge", state, nil); err != nil {
		return fmt.Errorf("failed to merge state: %w", err)
	}
	return nil
}

// FetchState returns the records of the collector's live accumulator
func (c *Client) FetchState(ctx context.Context) (timers.State, error) {
	var state timers.State
	if err := c.do(ctx, http.MethodGet, "/state", nil, &state); err != nil {
		return nil, fmt.Errorf("failed to fetch state: %w", err)
	}
	return state, nil
}

// FetchSummary returns the statistics of the live accumulator
func (c *Client) FetchSummary(ctx context.Context) (timers.Summary, error) {
	var summary timers.Summary
	if err := c.do(ctx, http.MethodGet, "/summary", nil, &summary); err != nil {
		return nil, fmt.Errorf("failed to fetch summary: %w", err)
	}
	return summary, nil
}

// ListSnapshots lists the snapshots stored on the collector, oldest first
func (c *Client) ListSnapshots(ctx context.Context) ([]store.SnapshotInfo, error) {
	var resp struct {
		Snapshots []store.SnapshotInfo `json:"snapshots"`
	}
	if err := c.do(ctx, http.MethodGet, "/snapshots", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return resp.Snapshots, nil
}

// GetSnapshot fetches one snapshot with its records
func (c *Client) GetSnapshot(ctx context.Context, id string) (*store.Snapshot, error) {
	var snap store.Snapshot
	if err := c.do(ctx, http.MethodGet, "/snapshots/"+url.PathEscape(id), nil, &snap); err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// DeleteSnapshot removes a snapshot
func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/snapshots/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	return nil
}

// do sends one request with retries and decodes a JSON response into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return retry.Do(ctx, c.policy(method), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		tracing.InjectHTTPHeaders(ctx, req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}
