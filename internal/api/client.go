package api

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

	"murmur/internal/services"
)

// ErrDaemonUnavailable reports that no daemon answered at the configured address.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// Client calls the daemon job API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient builds a client for the API listening on bind (host:port or URL).
func NewClient(bind, token string, timeout time.Duration) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, fmt.Errorf("%w: api bind address not configured", ErrDaemonUnavailable)
	}
	if !strings.Contains(bind, "://") {
		host, port, err := net.SplitHostPort(bind)
		if err != nil {
			return nil, fmt.Errorf("parse api bind %q: %w", bind, err)
		}
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "127.0.0.1"
		}
		bind = "http://" + net.JoinHostPort(host, port)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(bind, "/"),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: timeout},
	}, nil
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Kind != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Body.Kind, e.Body.Error)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body.Error)
}

// Is maps HTTP statuses onto the service error markers.
func (e *APIError) Is(target error) bool {
	switch target {
	case services.ErrValidation:
		return e.StatusCode == http.StatusBadRequest
	case services.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Submit enqueues a synthesis job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// List returns jobs, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses ...string) ([]Job, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		query := url.Values{}
		for _, status := range statuses {
			query.Add("status", status)
		}
		path += "?" + query.Encode()
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Get fetches one job.
func (c *Client) Get(ctx context.Context, jobID string) (*Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Retry resubmits a failed job.
func (c *Client) Retry(ctx context.Context, jobID string) (*Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/retry", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Clear removes finished jobs. status is "completed", "failed" or "" for all jobs.
func (c *Client) Clear(ctx context.Context, status string) (int64, error) {
	path := "/api/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp ClearResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (*NotificationResponse, error) {
	var resp NotificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(data, &apiErr.Body); err != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
