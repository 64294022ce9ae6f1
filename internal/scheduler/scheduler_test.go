package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

func noop(context.Context) error { return nil }

func TestRegister_RejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Register("purge_old_jobs", "0 0 * * *", noop))

	err := s.Register("purge_old_jobs", "0 12 * * *", noop)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegister_RejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.Register("broken", "not a cron spec", noop)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRunJob_BypassesScheduleAndReturnsError(t *testing.T) {
	t.Parallel()

	s := New()
	boom := errors.New("fetch failed")
	calls := 0
	require.NoError(t, s.Register("fetch_remotive_jobs", "0 1,13 * * *", func(context.Context) error {
		calls++
		return boom
	}))

	err := s.RunJob(t.Context(), "fetch_remotive_jobs")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRunJob_UnknownName(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.RunJob(t.Context(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobs_SortedByName(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Register("purge_old_jobs", "0 0 * * *", noop))
	require.NoError(t, s.Register("fill_missing_tags", "*/5 * * * *", noop))
	require.NoError(t, s.Register("fetch_wellfound_jobs", "0 12 * * *", noop))

	jobs := s.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "fetch_wellfound_jobs", jobs[0].Name)
	assert.Equal(t, "fill_missing_tags", jobs[1].Name)
	assert.Equal(t, "purge_old_jobs", jobs[2].Name)
	assert.Equal(t, "*/5 * * * *", jobs[1].Schedule)
}

func TestExecute_RecoversPanics(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Register("panicky", "0 0 * * *", func(context.Context) error {
		panic("worker blew up")
	}))

	assert.NotPanics(t, func() {
		s.execute(t.Context(), s.jobs["panicky"])
	})
	assert.False(t, s.jobs["panicky"].running.Load(), "running flag must reset after panic")
}

func TestExecute_SkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	calls := 0
	s := New()
	require.NoError(t, s.Register("slow", "* * * * *", func(context.Context) error {
		calls++
		return nil
	}))

	e := s.jobs["slow"]
	e.running.Store(true)
	s.execute(t.Context(), e)
	assert.Zero(t, calls, "an overlapping firing must be skipped")

	e.running.Store(false)
	s.execute(t.Context(), e)
	assert.Equal(t, 1, calls)
}

func TestRemoveJobs_EmptiesRegistry(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Register("a", "0 0 * * *", noop))
	require.NoError(t, s.Register("b", "0 0 * * *", noop))

	s.RemoveJobs()
	assert.Empty(t, s.Jobs())

	// Names are reusable after removal.
	require.NoError(t, s.Register("a", "0 0 * * *", noop))
}

func TestStartStop_Idempotent(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Register("a", "0 0 * * *", noop))

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
