package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"

	"github.com/flipscout/flipscout/config"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
)

func runJobs(ctx context.Context, cfg *config.AppConfig, db *sql.DB, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("jobs requires a subcommand: list or run")
	}

	switch args[0] {
	case "list":
		return runJobsList(ctx, db)
	case "run":
		return runJobsRun(ctx, cfg, db, logger, args[1:])
	default:
		return fmt.Errorf("unknown jobs subcommand %q", args[0])
	}
}

func runJobsList(ctx context.Context, db *sql.DB) error {
	repo := data.NewScheduledJobRepo(db)
	jobs, err := repo.List(ctx)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		lastRun := "never"
		if job.LastRunAt != nil {
			lastRun = job.LastRunAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-20s %-8s every %dh  last=%s  next=%s\n",
			job.JobType, job.Status, job.IntervalHours,
			lastRun, job.NextRunAt.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}

// runJobsRun executes one job immediately, outside its schedule. The regular
// next_run_at is left untouched.
func runJobsRun(ctx context.Context, cfg *config.AppConfig, db *sql.DB, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("jobs run", flag.ContinueOnError)
	jobTypeRaw := fs.String("type", "", "job type to run (monitoring_cycle, data_cleanup)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	jobType, ok := model.ParseJobType(*jobTypeRaw)
	if !ok {
		return fmt.Errorf("unknown job type %q", *jobTypeRaw)
	}

	services, err := buildServices(cfg, db, logger)
	if err != nil {
		return err
	}

	switch jobType {
	case model.JobTypeMonitoringCycle:
		disc, err := services.Discovery.DiscoverAll(ctx, cfg.Monitor.BatchSize)
		if err != nil {
			return err
		}
		cycle, err := services.Monitor.RunCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("discovered=%d created=%d updated=%d %s\n",
			disc.Found, disc.Created, disc.Updated, cycle.String())
		return nil

	case model.JobTypeDataCleanup:
		summary, err := services.Retention.RunCleanup(ctx)
		if err != nil {
			return err
		}
		fmt.Println(summary.String())
		return nil

	default:
		return fmt.Errorf("job type %q has no runner", jobType)
	}
}
