package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobfeed/internal/scheduler"
	"github.com/fairyhunter13/jobfeed/internal/usecase"
)

func TestRegisterSchedules(t *testing.T) {
	t.Parallel()
	sched := scheduler.New()
	err := RegisterSchedules(sched, usecase.IngestService{}, usecase.TagBackfillService{}, usecase.PurgeService{})
	require.NoError(t, err)

	specs := make(map[string]string)
	for _, j := range sched.Jobs() {
		specs[j.Name] = j.Schedule
	}

	// Every source gets its own fetch job; wellfound runs on its reduced
	// cadence.
	assert.Equal(t, "0 1,13 * * *", specs["fetch_himalayas_jobs"])
	assert.Equal(t, "0 1,13 * * *", specs["fetch_python_dot_org_jobs"])
	assert.Equal(t, "0 1,13 * * *", specs["fetch_remotive_jobs"])
	assert.Equal(t, "0 1,13 * * *", specs["fetch_weworkremotely_jobs"])
	assert.Equal(t, "0 1,13 * * *", specs["fetch_work_at_a_startup_jobs"])
	assert.Equal(t, "0 12 * * *", specs["fetch_wellfound_jobs"])

	assert.Equal(t, "0 0 * * *", specs["purge_old_jobs"])
	assert.Equal(t, "*/5 * * * *", specs["fill_missing_tags"])
	assert.Len(t, specs, 8)
}

func TestRegisterSchedulesRejectsDuplicates(t *testing.T) {
	t.Parallel()
	sched := scheduler.New()
	require.NoError(t, RegisterSchedules(sched, usecase.IngestService{}, usecase.TagBackfillService{}, usecase.PurgeService{}))
	assert.Error(t, RegisterSchedules(sched, usecase.IngestService{}, usecase.TagBackfillService{}, usecase.PurgeService{}))
}
