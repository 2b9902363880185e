// Package aggregate reports radar detections to a remote telemetry endpoint.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no endpoint is configured.
var ErrNotConfigured = errors.New("aggregate: endpoint not configured")

// Event is one detection. Ghost events are detections that did not produce
// a user visible notification.
type Event struct {
	Name      string
	Label     string
	Timestamp time.Time
	Ghost     bool
}

// Client posts events as an authenticated form.
type Client struct {
	URL        string
	Key        string
	HTTPClient *http.Client
}

// NewClient creates a Client with a 10 second HTTP timeout.
func NewClient(endpoint, key string) *Client {
	return &Client{
		URL:        endpoint,
		Key:        key,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether an endpoint and key are set.
func (c *Client) Configured() bool {
	return c != nil && c.URL != "" && c.Key != ""
}

// Record posts ev.
func (c *Client) Record(ctx context.Context, ev Event) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	form := url.Values{}
	form.Set("key", c.Key)
	form.Set("name", ev.Name)
	form.Set("timestamp", ev.Timestamp.Format(time.RFC3339))
	form.Set("label", ev.Label)
	if ev.Ghost {
		form.Set("ghost", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post event: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
