package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnStart(t *testing.T) {
	s := NewService(nil)
	var runs atomic.Int32
	_, err := s.AddJob("alerts", "@every 1h", true, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.ListJobs()[0].State.Runs == 1 }, time.Second, 5*time.Millisecond)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "alerts", jobs[0].Name)
	assert.Equal(t, "ok", jobs[0].State.LastStatus)
	assert.False(t, jobs[0].State.NextRunAt.IsZero())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestPeriodicRun(t *testing.T) {
	s := NewService(nil)
	var runs atomic.Int32
	_, err := s.AddJob("tick", "@every 1s", false, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestJobFailuresAreRecorded(t *testing.T) {
	s := NewService(nil)
	_, err := s.AddJob("fails", "@every 1h", true, func(context.Context) error { return errors.New("feed down") })
	require.NoError(t, err)
	_, err = s.AddJob("panics", "@every 1h", true, func(context.Context) error { panic("bug") })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		for _, j := range s.ListJobs() {
			if j.State.Runs != 1 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	byName := map[string]Job{}
	for _, j := range s.ListJobs() {
		byName[j.Name] = j
	}
	assert.Equal(t, "error", byName["fails"].State.LastStatus)
	assert.Equal(t, "feed down", byName["fails"].State.LastError)
	assert.Equal(t, "panic: bug", byName["panics"].State.LastError)
}

func TestInvalidSpec(t *testing.T) {
	s := NewService(nil)
	_, err := s.AddJob("bad", "every now and then", false, func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Empty(t, s.ListJobs())
}

func TestJobsReceiveRunContext(t *testing.T) {
	s := NewService(nil)
	type key struct{}
	got := make(chan any, 1)
	_, err := s.AddJob("ctx", "@every 1h", true, func(ctx context.Context) error {
		got <- ctx.Value(key{})
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "gateway"))
	defer cancel()
	go s.Run(ctx)

	select {
	case v := <-got:
		assert.Equal(t, "gateway", v)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}
