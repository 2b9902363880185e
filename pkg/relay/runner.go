package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrRelayFailed is returned when the relay exits non-zero or writes to
	// stderr.
	ErrRelayFailed = errors.New("relay: command failed")
	// ErrTimeout is returned when the relay does not finish in time.
	ErrTimeout = errors.New("relay: timed out")
)

// Runner invokes the relay once with args, bounded by timeout.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, args []string) error
}

// CLIRunner executes the relay binary directly, without a shell.
type CLIRunner struct {
	Path string
}

// NewCLIRunner resolves name on PATH, falling back to the bare name.
func NewCLIRunner(name string) *CLIRunner {
	if name == "" {
		name = "meshtastic"
	}
	if p, err := exec.LookPath(name); err == nil {
		name = p
	}
	return &CLIRunner{Path: name}
}

// Run succeeds only if the command exits zero with empty stderr.
func (r *CLIRunner) Run(ctx context.Context, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	errOutput := strings.TrimSpace(stderr.String())
	if err != nil {
		if errOutput != "" {
			return fmt.Errorf("%w: %v: %s", ErrRelayFailed, err, errOutput)
		}
		return fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	if errOutput != "" {
		return fmt.Errorf("%w: %s", ErrRelayFailed, errOutput)
	}
	return nil
}
