package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roundtable/internal/api"
	"roundtable/internal/config"
)

// ErrAPIDisabled indicates the config has no API bind address.
var ErrAPIDisabled = errors.New("daemon API disabled (paths.api_bind is empty)")

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for the daemon described by cfg. Wildcard bind
// hosts are dialled on loopback.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.Paths.APIBind) == "" {
		return nil, ErrAPIDisabled
	}
	host, port, err := net.SplitHostPort(strings.TrimSpace(cfg.Paths.APIBind))
	if err != nil {
		return nil, fmt.Errorf("parse api_bind: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return NewClientForURL("http://"+net.JoinHostPort(host, port), cfg.Paths.APIToken), nil
}

// NewClientForURL builds a client for an explicit base URL.
func NewClientForURL(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var resp api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions returns sessions, optionally filtered by state.
func (c *Client) ListSessions(ctx context.Context, states ...string) ([]api.Session, error) {
	path := "/api/sessions"
	if len(states) > 0 {
		query := url.Values{}
		for _, state := range states {
			query.Add("state", state)
		}
		path += "?" + query.Encode()
	}
	var resp api.SessionListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSession fetches one session.
func (c *Client) GetSession(ctx context.Context, id string) (*api.Session, error) {
	var resp api.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// CreateSession queues a folder with the daemon.
func (c *Client) CreateSession(ctx context.Context, req api.CreateSessionRequest) (*api.Session, error) {
	var resp api.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// Diagnose fetches a session health report.
func (c *Client) Diagnose(ctx context.Context, id string) (*api.Diagnostics, error) {
	var resp api.Diagnostics
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id)+"/diagnose", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recover resets failed files of a session.
func (c *Client) Recover(ctx context.Context, id string) (int, error) {
	return c.count(ctx, "/api/sessions/"+url.PathEscape(id)+"/recover")
}

// Redownload re-fetches missing transcripts of a session.
func (c *Client) Redownload(ctx context.Context, id string) (int, error) {
	return c.count(ctx, "/api/sessions/"+url.PathEscape(id)+"/redownload")
}

// Cancel stops a running session.
func (c *Client) Cancel(ctx context.Context, id string) error {
	_, err := c.count(ctx, "/api/sessions/"+url.PathEscape(id)+"/cancel")
	return err
}

// SweepStuck runs the stuck-session scan. A zero threshold uses the daemon's
// configured value.
func (c *Client) SweepStuck(ctx context.Context, threshold time.Duration) (int, error) {
	path := "/api/maintenance/stuck"
	if threshold > 0 {
		path += "?threshold=" + url.QueryEscape(threshold.String())
	}
	return c.count(ctx, path)
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (*api.CountResponse, error) {
	var resp api.CountResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) count(ctx context.Context, path string) (int, error) {
	var resp api.CountResponse
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
		}
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var failure api.ErrorResponse
		if json.Unmarshal(payload, &failure) != nil || failure.Error == "" {
			failure.Error = strings.TrimSpace(string(payload))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: failure.Error}
	}
	if target == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isUnavailable(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
