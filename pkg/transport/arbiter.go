package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrPortClosed is returned by Read when the device handle is not open.
	ErrPortClosed = errors.New("transport: port closed")
	// ErrNoDevice is returned when none of the candidate paths exists.
	ErrNoDevice = errors.New("transport: no device found")
)

// ArbiterConfig configures an Arbiter.
type ArbiterConfig struct {
	// Candidates are tried in order; the first existing path is opened.
	Candidates []string
	// PollInterval is the wait between device existence checks.
	PollInterval time.Duration
	Opener       Opener
	// Exists defaults to PathExists.
	Exists func(path string) bool
	Logger *slog.Logger
}

// Arbiter owns the single exclusive handle to the device. The line reader
// holds it between reads; senders take it away for the length of one send
// window with WithTemporaryRelease.
type Arbiter struct {
	mu   sync.Mutex
	port Port
	path string

	candidates []string
	poll       time.Duration
	opener     Opener
	exists     func(string) bool
	logger     *slog.Logger
}

// NewArbiter creates an Arbiter. The device is not opened until Open.
func NewArbiter(cfg ArbiterConfig) *Arbiter {
	a := &Arbiter{
		candidates: cfg.Candidates,
		poll:       cfg.PollInterval,
		opener:     cfg.Opener,
		exists:     cfg.Exists,
		logger:     cfg.Logger,
	}
	if a.poll <= 0 {
		a.poll = 5 * time.Second
	}
	if a.exists == nil {
		a.exists = PathExists
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "transport")
	return a
}

// Resolve returns the first candidate path that exists.
func (a *Arbiter) Resolve() (string, error) {
	for _, p := range a.candidates {
		if a.exists(p) {
			return p, nil
		}
	}
	return "", ErrNoDevice
}

// Open waits until a device path exists, polling every PollInterval, and
// opens it once no sender holds the transport. It returns early only when
// ctx is done or opening fails.
func (a *Arbiter) Open(ctx context.Context) error {
	path, err := a.Resolve()
	for err != nil {
		a.logger.Info("no device found, waiting", "candidates", a.candidates, "retry_in", a.poll)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.poll):
		}
		path, err = a.Resolve()
	}

	// Opening under the lock waits out any send window in progress.
	a.mu.Lock()
	defer a.mu.Unlock()
	port, err := a.opener(path)
	if err != nil {
		return err
	}
	if a.port != nil {
		a.port.Close()
	}
	a.port = port
	a.path = path
	a.logger.Info("device opened, waiting for messages", "path", path)
	return nil
}

// Close releases the handle. Closing a closed arbiter is a no-op.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *Arbiter) closeLocked() error {
	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	return err
}

// IsOpen reports whether the handle is currently held open.
func (a *Arbiter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port != nil
}

// Path returns the path of the last opened device.
func (a *Arbiter) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// Read performs one bounded read on the open handle. A sender holding the
// handle delays the read until its window ends.
func (a *Arbiter) Read(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		return 0, ErrPortClosed
	}
	return a.port.Read(p)
}

// WithTemporaryRelease runs fn with the device closed and exclusive use of
// the transport. If the handle was open it is reopened before returning,
// even when fn fails or panics. fn must not call back into the Arbiter.
func (a *Arbiter) WithTemporaryRelease(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	wasOpen := a.port != nil
	if wasOpen {
		if cerr := a.closeLocked(); cerr != nil {
			a.logger.Warn("error closing device for send", "path", a.path, "error", cerr)
		}
		a.logger.Debug("device closed for sending", "path", a.path)
	}

	defer func() {
		if !wasOpen {
			return
		}
		port, oerr := a.opener(a.path)
		if oerr != nil {
			a.logger.Error("failed to reopen device", "path", a.path, "error", oerr)
			if err == nil {
				err = fmt.Errorf("reopen %s: %w", a.path, oerr)
			}
			return
		}
		a.port = port
		a.logger.Debug("device reopened", "path", a.path)
	}()

	return fn(ctx)
}
