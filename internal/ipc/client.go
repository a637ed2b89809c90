package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New builds a client for the daemon listening at bind ("host:port" or a
// full URL). token may be empty when the API runs unauthenticated.
func New(bind, token string) *Client {
	base := strings.TrimSpace(bind)
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var out DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Queue fetches the scheduler snapshot.
func (c *Client) Queue(ctx context.Context) (*QueueResponse, error) {
	var out QueueResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Check triggers an immediate episode check.
func (c *Client) Check(ctx context.Context) (*CheckResponse, error) {
	var out CheckResponse
	if err := c.do(ctx, http.MethodPost, "/api/check", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel aborts the queued or active work for one episode.
func (c *Client) Cancel(ctx context.Context, episodeID int64) (*CancelResponse, error) {
	var out CancelResponse
	path := "/api/cancel/" + strconv.FormatInt(episodeID, 10)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Limit returns the current concurrency limit.
func (c *Client) Limit(ctx context.Context) (*LimitResponse, error) {
	var out LimitResponse
	if err := c.do(ctx, http.MethodGet, "/api/limit", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetLimit changes the concurrency limit while the daemon runs.
func (c *Client) SetLimit(ctx context.Context, limit int) (*LimitResponse, error) {
	var out LimitResponse
	if err := c.do(ctx, http.MethodPost, "/api/limit", LimitRequest{Limit: limit}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/stop", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("daemon api address not configured")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
