package msglog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HKUDS/meshgate-go/pkg/bus"
)

// Collector pushes records to a remote HTTP endpoint authenticated with an
// X-API-KEY header.
type Collector struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

func NewCollector(url, apiKey string) *Collector {
	return &Collector{URL: url, APIKey: apiKey, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// Push posts r as JSON. Only a 200 reply counts as success.
func (c *Collector) Push(ctx context.Context, r Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Logger records inbound messages locally and remotely.
type Logger struct {
	store     Store
	collector *Collector
	logger    *slog.Logger
}

// NewLogger creates a Logger. A nil collector keeps records local only.
func NewLogger(store Store, collector *Collector, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{store: store, collector: collector, logger: logger.With("component", "msglog")}
}

// Log appends msg to the store and forwards it to the collector. A failed
// push is logged and not retried; a failed append is returned.
func (l *Logger) Log(ctx context.Context, msg bus.InboundMessage) error {
	ts := msg.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	r := Record{
		ID:        uuid.NewString(),
		From:      bus.NormalizeNodeID(msg.From),
		MsgID:     msg.ID,
		Text:      msg.Text,
		Timestamp: ts,
	}

	if err := l.store.Append(ctx, r); err != nil {
		return fmt.Errorf("append message log: %w", err)
	}
	l.logger.Info("logged message", "from", r.From, "msg_id", r.MsgID, "text", r.Text)

	if l.collector == nil {
		return nil
	}
	if err := l.collector.Push(ctx, r); err != nil {
		l.logger.Error("error pushing message to collector", "error", err)
		return nil
	}
	l.logger.Debug("pushed message to collector", "msg_id", r.MsgID)
	return nil
}

// Close closes the underlying store.
func (l *Logger) Close() error {
	return l.store.Close()
}
