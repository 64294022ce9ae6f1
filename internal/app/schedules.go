package app

import (
	"context"

	"github.com/fairyhunter13/jobfeed/internal/adapter/source"
	"github.com/fairyhunter13/jobfeed/internal/scheduler"
	"github.com/fairyhunter13/jobfeed/internal/usecase"
)

const (
	// Fetches run at 1 AM/PM rather than midnight and noon: the FX dataset
	// for a new day is not published at midnight.
	fetchSpec = "0 1,13 * * *"
	// Wellfound consumes a lot of gateway credits, so it runs once a day.
	wellfoundFetchSpec = "0 12 * * *"
	purgeSpec          = "0 0 * * *"
	fillTagsSpec       = "*/5 * * * *"
)

// RegisterSchedules adds one fetch job per source plus the maintenance jobs.
// Per-source jobs isolate failures; one broken source never blocks the rest.
func RegisterSchedules(sched *scheduler.Scheduler, ingest usecase.IngestService, backfill usecase.TagBackfillService, purge usecase.PurgeService) error {
	for _, name := range source.Names() {
		spec := fetchSpec
		if name == "wellfound" {
			spec = wellfoundFetchSpec
		}
		job := func(ctx context.Context) error {
			return ingest.Run(ctx, []string{name})
		}
		if err := sched.Register("fetch_"+name+"_jobs", spec, job); err != nil {
			return err
		}
	}
	if err := sched.Register("purge_old_jobs", purgeSpec, purge.Run); err != nil {
		return err
	}
	return sched.Register("fill_missing_tags", fillTagsSpec, backfill.Run)
}
