// Package alerts fetches official severe weather and civil protection
// warnings and forwards new ones to the mesh.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Source identifies the feed an alert came from.
type Source string

const (
	SourceWeather  Source = "DWD"
	SourceDisaster Source = "MoWaS"
)

// Alert is one warning from either feed.
type Alert struct {
	ID          string
	Source      Source
	Headline    string
	Level       int
	Description string
}

// Format renders the alert for a mesh broadcast.
func (a Alert) Format() string {
	headline := a.Headline
	if headline == "" {
		headline = "Warning"
	}
	if a.Source == SourceWeather {
		return fmt.Sprintf("DWD: %s (level %d) - %s", headline, a.Level, a.Description)
	}
	return fmt.Sprintf("Disaster: %s - %s", headline, a.Description)
}

// level accepts numbers and numeric strings.
type level int

func (l *level) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*l = 0
			return nil
		}
		n = json.Number(s)
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		*l = 0
		return nil
	}
	*l = level(f)
	return nil
}

type feedItem struct {
	Identifier  string `json:"identifier"`
	Headline    string `json:"headline"`
	Level       level  `json:"level"`
	Description string `json:"description"`
	StateShort  string `json:"stateShort"`
}

// Client reads both warning feeds.
type Client struct {
	WeatherURL  string
	DisasterURL string
	State       string
	MinLevel    int
	HTTPClient  *http.Client
}

// NewClient creates a Client filtering to state and weather warnings of at
// least minLevel.
func NewClient(weatherURL, disasterURL, state string, minLevel int) *Client {
	return &Client{
		WeatherURL:  weatherURL,
		DisasterURL: disasterURL,
		State:       state,
		MinLevel:    minLevel,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch returns the weather warnings followed by the disaster warnings. A
// failing feed does not hide the other one; the error reports every failure.
func (c *Client) Fetch(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	var errs []error

	weather, err := c.fetch(ctx, c.WeatherURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("weather feed: %w", err))
	}
	for _, it := range weather {
		if it.StateShort == c.State && int(it.Level) >= c.MinLevel {
			alerts = append(alerts, it.alert(SourceWeather))
		}
	}

	disaster, err := c.fetch(ctx, c.DisasterURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("disaster feed: %w", err))
	}
	for _, it := range disaster {
		if it.StateShort == c.State {
			alerts = append(alerts, it.alert(SourceDisaster))
		}
	}

	return alerts, errors.Join(errs...)
}

func (it feedItem) alert(src Source) Alert {
	return Alert{
		ID:          it.Identifier,
		Source:      src,
		Headline:    it.Headline,
		Level:       int(it.Level),
		Description: it.Description,
	}
}

func (c *Client) fetch(ctx context.Context, url string) ([]feedItem, error) {
	if url == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %s", resp.Status)
	}

	var items []feedItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return items, nil
}
