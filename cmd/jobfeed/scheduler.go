package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/jobfeed/internal/app"
	"github.com/fairyhunter13/jobfeed/internal/scheduler"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Job scheduler commands",
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the job scheduler",
	RunE:  runSchedulerStart,
}

var schedulerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the job scheduler",
	RunE: func(*cobra.Command, []string) error {
		sched := scheduler.New()
		sched.RemoveJobs()
		sched.Stop()
		fmt.Println("Scheduler stopped.")
		return nil
	},
}

var schedulerListJobsCmd = &cobra.Command{
	Use:   "list-jobs",
	Short: "List all registered jobs",
	RunE:  runSchedulerListJobs,
}

var schedulerRunJobCmd = &cobra.Command{
	Use:   "run-job <job-name>",
	Short: "Run a specific job",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedulerRunJob,
}

var schedulerRemoveJobsCmd = &cobra.Command{
	Use:   "remove-jobs",
	Short: "Remove all scheduled jobs",
	RunE: func(*cobra.Command, []string) error {
		scheduler.New().RemoveJobs()
		return nil
	},
}

func init() {
	schedulerCmd.AddCommand(
		schedulerStartCmd,
		schedulerStopCmd,
		schedulerListJobsCmd,
		schedulerRunJobCmd,
		schedulerRemoveJobsCmd,
	)
	rootCmd.AddCommand(schedulerCmd)
}

// buildScheduler wires the application and registers the default schedule.
func buildScheduler(ctx context.Context) (*app.App, *scheduler.Scheduler, error) {
	a, err := app.Bootstrap(ctx)
	if err != nil {
		return nil, nil, err
	}
	sched := scheduler.New()
	if err := app.RegisterSchedules(sched, a.Ingest, a.Backfill, a.Purge); err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, sched, nil
}

func runSchedulerStart(cmd *cobra.Command, _ []string) error {
	a, sched, err := buildScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched.Start()
	fmt.Println("Scheduler started.\nPress Ctrl+C to stop...")

	<-cmd.Context().Done()

	fmt.Println("Stopping scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped.")
	return nil
}

func runSchedulerListJobs(cmd *cobra.Command, _ []string) error {
	a, sched, err := buildScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	jobs := sched.Jobs()
	if len(jobs) == 0 {
		fmt.Println("No jobs registered")
		return nil
	}
	fmt.Println("Registered jobs:")
	for _, j := range jobs {
		fmt.Printf("  - %s (%s)\n", j.Name, j.Schedule)
	}
	return nil
}

func runSchedulerRunJob(cmd *cobra.Command, args []string) error {
	a, sched, err := buildScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	jobName := args[0]
	if err := sched.RunJob(cmd.Context(), jobName); err != nil {
		return err
	}
	fmt.Printf("Job %q executed successfully\n", jobName)
	return nil
}
