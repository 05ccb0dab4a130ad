// Command flipscout-admin provides operational one-shots: ingesting the
// product input list, listing the recurring jobs, and triggering a job run
// outside its schedule.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/flipscout/flipscout/config"
	"github.com/flipscout/flipscout/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}

	logger := bootstrap.InitLogger(cfg.IsDev)
	if err := run(ctx, &cfg, logger, os.Args[1:]); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("a subcommand is required")
	}

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()

	switch args[0] {
	case "ingest":
		return runIngest(ctx, cfg, db, logger, args[1:])
	case "jobs":
		return runJobs(ctx, cfg, db, logger, args[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: flipscout-admin <command> [flags]

Commands:
  ingest -file <path>      ingest products from a CSV input list
  jobs list                show the recurring job schedule
  jobs run -type <type>    run one job immediately (monitoring_cycle, data_cleanup)
`)
}

func buildServices(cfg *config.AppConfig, db *sql.DB, logger *slog.Logger) (*bootstrap.ServiceContainer, error) {
	return bootstrap.BuildServices(bootstrap.ServiceDeps{
		Config: cfg,
		DB:     db,
		Logger: logger,
	})
}
