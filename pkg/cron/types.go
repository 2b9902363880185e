package cron

import (
	"context"
	"time"
)

// JobFunc is the work of a scheduled job.
type JobFunc func(ctx context.Context) error

// JobState runtime state.
type JobState struct {
	NextRunAt  time.Time `json:"nextRunAt,omitempty"`
	LastRunAt  time.Time `json:"lastRunAt,omitempty"`
	LastStatus string    `json:"lastStatus,omitempty"` // ok, error
	LastError  string    `json:"lastError,omitempty"`
	Runs       int       `json:"runs"`
}

// Job definition.
type Job struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Spec       string   `json:"spec"` // robfig/cron spec, e.g. "@every 900s"
	RunOnStart bool     `json:"runOnStart"`
	State      JobState `json:"state"`
}
