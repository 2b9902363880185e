package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type entry struct {
	job     Job
	fn      JobFunc
	entryID cron.EntryID
	wrapped cron.Job
}

// Service runs named jobs on cron specs.
type Service struct {
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.RWMutex
	entries []*entry
	ctx     context.Context
	started bool
	initial sync.WaitGroup
}

// NewService creates a new scheduler. Runs of a job never overlap; a tick
// arriving while the previous run is still busy is skipped.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cron")
	return &Service{
		cron:   cron.New(cron.WithLogger(cronLogger{logger})),
		logger: logger,
		ctx:    context.Background(),
	}
}

// AddJob schedules fn under spec. With runOnStart the job also runs once
// immediately when the service starts.
func (s *Service) AddJob(name, spec string, runOnStart bool, fn JobFunc) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{
		job: Job{
			ID:         uuid.New().String()[:8],
			Name:       name,
			Spec:       spec,
			RunOnStart: runOnStart,
		},
		fn: fn,
	}
	e.wrapped = cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).
		Then(cron.FuncJob(func() { s.executeJob(e) }))

	id, err := s.cron.AddJob(spec, e.wrapped)
	if err != nil {
		return Job{}, fmt.Errorf("schedule job %q: %w", name, err)
	}
	e.entryID = id
	s.entries = append(s.entries, e)
	return e.job, nil
}

// Start starts the scheduler. Jobs receive ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.started = true
	var immediate []*entry
	for _, e := range s.entries {
		if e.job.RunOnStart {
			immediate = append(immediate, e)
		}
	}
	s.mu.Unlock()

	s.cron.Start()
	for _, e := range immediate {
		s.initial.Add(1)
		go func(e *entry) {
			defer s.initial.Done()
			e.wrapped.Run()
		}(e)
	}
	s.logger.Info("cron service started", "jobs", len(s.entries))
}

// Stop stops the scheduler. The returned context is done once running
// jobs have finished.
func (s *Service) Stop() context.Context {
	return s.cron.Stop()
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs.
func (s *Service) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	<-s.Stop().Done()
	s.initial.Wait()
	s.logger.Info("cron service stopped")
	return nil
}

func (s *Service) executeJob(e *entry) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	start := time.Now()
	s.logger.Debug("executing job", "name", e.job.Name, "id", e.job.ID)

	status, errText := "ok", ""
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic executing job", "name", e.job.Name, "panic", r)
				status, errText = "error", fmt.Sprintf("panic: %v", r)
			}
		}()
		if err := e.fn(ctx); err != nil {
			s.logger.Error("job failed", "name", e.job.Name, "error", err)
			status, errText = "error", err.Error()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	e.job.State.LastRunAt = start
	e.job.State.LastStatus = status
	e.job.State.LastError = errText
	e.job.State.Runs++
}

// ListJobs returns the jobs ordered by their next run.
func (s *Service) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.entries))
	for _, e := range s.entries {
		j := e.job
		if s.started {
			j.State.NextRunAt = s.cron.Entry(e.entryID).Next
		}
		jobs = append(jobs, j)
	}
	sort.SliceStable(jobs, func(i, k int) bool {
		n1, n2 := jobs[i].State.NextRunAt, jobs[k].State.NextRunAt
		if n1.IsZero() {
			return false
		}
		if n2.IsZero() {
			return true
		}
		return n1.Before(n2)
	})
	return jobs
}

// cronLogger adapts slog to the robfig/cron logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
