package transport

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/HKUDS/meshgate-go/pkg/metrics"
)

// State is the line reader's connection state.
type State int32

const (
	WaitingForDevice State = iota
	Open
	Reading
	Closed
)

func (s State) String() string {
	switch s {
	case WaitingForDevice:
		return "waiting_for_device"
	case Open:
		return "open"
	case Reading:
		return "reading"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// maxLineLength bounds the buffered partial line when the device never
// sends a newline.
const maxLineLength = 64 * 1024

// LineHandler receives every non-empty line read from the device.
type LineHandler func(ctx context.Context, line string)

// Reader pulls lines through the Arbiter and survives the device
// disappearing and reappearing.
type Reader struct {
	arbiter *Arbiter
	handle  LineHandler
	delay   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	state atomic.Int32
}

// NewReader creates a Reader. delay is the pause after a lost connection.
func NewReader(a *Arbiter, handle LineHandler, delay time.Duration, logger *slog.Logger, m *metrics.Metrics) *Reader {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		arbiter: a,
		handle:  handle,
		delay:   delay,
		logger:  logger.With("component", "reader"),
		metrics: m,
	}
}

// State returns the current state.
func (r *Reader) State() State {
	return State(r.state.Load())
}

func (r *Reader) setState(s State) {
	if prev := State(r.state.Swap(int32(s))); prev != s {
		r.logger.Debug("state transition", "from", prev, "to", s)
	}
}

// Run reads until ctx is done. Transport failures never end the loop.
func (r *Reader) Run(ctx context.Context) error {
	for {
		r.setState(WaitingForDevice)
		if err := r.arbiter.Open(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("failed to open device", "error", err, "retry_in", r.delay)
			if !sleep(ctx, r.delay) {
				return ctx.Err()
			}
			continue
		}
		r.setState(Open)

		err := r.readLoop(ctx)

		_ = r.arbiter.Close()
		r.setState(Closed)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.metrics.Reconnect()
		r.logger.Warn("connection lost, restarting monitoring", "path", r.arbiter.Path(), "error", err, "retry_in", r.delay)
		if !sleep(ctx, r.delay) {
			return ctx.Err()
		}
	}
}

func (r *Reader) readLoop(ctx context.Context) error {
	r.setState(Reading)
	buf := make([]byte, 1024)
	var pending []byte

	for ctx.Err() == nil {
		n, err := r.arbiter.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				r.emit(ctx, pending[:idx])
				pending = pending[idx+1:]
			}
			if len(pending) > maxLineLength {
				r.emit(ctx, pending)
				pending = nil
			}
		}
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (r *Reader) emit(ctx context.Context, raw []byte) {
	line := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	if line == "" {
		return
	}
	r.metrics.LineRead()
	r.handle(ctx, line)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
