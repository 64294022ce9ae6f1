// Package scheduler runs the periodic pipeline tasks on standard five-field
// cron schedules. Jobs fail independently: a panicking or erroring job is
// logged, reported and counted, and the scheduler keeps going.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/jobfeed/internal/adapter/observability"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// JobInfo describes one registered job.
type JobInfo struct {
	Name     string
	Schedule string
	// NextRun is zero until the scheduler has started.
	NextRun time.Time
}

type jobEntry struct {
	name     string
	schedule string
	fn       func(context.Context) error
	cronID   cron.EntryID
	running  atomic.Bool
}

// Scheduler is a named-job cron registry.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]*jobEntry

	started bool
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		jobs: make(map[string]*jobEntry),
	}
}

// Register adds a named job. Duplicate names and invalid cron specs are
// rejected.
func (s *Scheduler) Register(name, spec string, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("op=scheduler.register: %w: job %q already registered", domain.ErrConfiguration, name)
	}
	entry := &jobEntry{name: name, schedule: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() {
		s.execute(context.Background(), entry)
	})
	if err != nil {
		return fmt.Errorf("op=scheduler.register: %w: job %q spec %q: %v", domain.ErrConfiguration, name, spec, err)
	}
	entry.cronID = id
	s.jobs[name] = entry

	slog.Info("job registered",
		slog.String("job", name),
		slog.String("schedule", spec))
	return nil
}

// execute wraps one scheduled run: overlap skip, panic recovery, duration
// log, failure reporting.
func (s *Scheduler) execute(ctx context.Context, e *jobEntry) {
	if !e.running.CompareAndSwap(false, true) {
		slog.Warn("job still running, skipping this firing", slog.String("job", e.name))
		return
	}
	defer e.running.Store(false)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("job panicked",
				slog.String("job", e.name),
				slog.Any("panic", rec))
			observability.CapturePanic(rec, map[string]string{"job": e.name})
			observability.SchedulerJobFailuresTotal.WithLabelValues(e.name).Inc()
		}
	}()

	start := time.Now()
	slog.Info("job started", slog.String("job", e.name))
	err := e.fn(ctx)
	dur := time.Since(start)
	if err != nil {
		slog.Error("job failed",
			slog.String("job", e.name),
			slog.Duration("duration", dur),
			slog.Any("error", err))
		observability.CaptureError(err, map[string]string{"job": e.name})
		observability.SchedulerJobFailuresTotal.WithLabelValues(e.name).Inc()
		return
	}
	slog.Info("job finished",
		slog.String("job", e.name),
		slog.Duration("duration", dur))
}

// RunJob executes a registered job immediately and synchronously, bypassing
// its schedule. The job's error comes back to the caller instead of the
// usual log-and-continue handling.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("op=scheduler.run_job: %w: job %q", domain.ErrNotFound, name)
	}
	return e.fn(ctx)
}

// Jobs lists the registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		info := JobInfo{Name: e.name, Schedule: e.schedule}
		for _, ce := range entries {
			if ce.ID == e.cronID {
				info.NextRun = ce.Next
				break
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	slog.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop halts scheduling and waits for in-flight jobs to finish. In-flight
// HTTP calls keep their own timeouts; nothing is cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// RemoveJobs unregisters every job, leaving the scheduler empty but usable.
func (s *Scheduler) RemoveJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.jobs {
		s.cron.Remove(e.cronID)
		delete(s.jobs, name)
	}
	slog.Info("all jobs removed")
}
