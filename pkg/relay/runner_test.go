package relay

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script standing in for the relay.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "relay.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestCLIRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		r := &CLIRunner{Path: writeScript(t, `echo "sent $4"`)}
		assert.NoError(t, r.Run(ctx, 5*time.Second, []string{"--dest", "!1", "--sendtext", "hi"}))
	})

	t.Run("arguments are not shell interpreted", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out")
		r := &CLIRunner{Path: writeScript(t, `printf '%s' "$4" > `+out)}
		payload := `it's "$HOME" ; rm -rf /`
		require.NoError(t, r.Run(ctx, 5*time.Second, []string{"--dest", "!1", "--sendtext", payload}))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, payload, string(data))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		r := &CLIRunner{Path: writeScript(t, `exit 3`)}
		assert.ErrorIs(t, r.Run(ctx, 5*time.Second, nil), ErrRelayFailed)
	})

	t.Run("stderr output", func(t *testing.T) {
		r := &CLIRunner{Path: writeScript(t, `echo "Timed out waiting for connection" >&2`)}
		err := r.Run(ctx, 5*time.Second, nil)
		assert.ErrorIs(t, err, ErrRelayFailed)
		assert.ErrorContains(t, err, "Timed out waiting")
	})

	t.Run("timeout", func(t *testing.T) {
		r := &CLIRunner{Path: writeScript(t, `exec sleep 5`)}
		assert.ErrorIs(t, r.Run(ctx, 50*time.Millisecond, nil), ErrTimeout)
	})
}

func TestNewCLIRunnerFallsBackToName(t *testing.T) {
	r := NewCLIRunner("definitely-not-installed-relay")
	assert.Equal(t, "definitely-not-installed-relay", r.Path)
}
