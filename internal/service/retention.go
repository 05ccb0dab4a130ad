package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flipscout/flipscout/internal/core"
)

// RetentionConfig groups the cleanup job's age limits.
type RetentionConfig struct {
	ListingHistoryMaxAge time.Duration
	AlertRecordsMaxAge   time.Duration
	JobRunsMaxAge        time.Duration
	// BatchSize bounds each delete statement so cleanup never holds long
	// row locks on a busy table.
	BatchSize int
}

// DefaultRetentionConfig returns the stock 90d history / 30d alerts and runs
// retention.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		ListingHistoryMaxAge: 90 * 24 * time.Hour,
		AlertRecordsMaxAge:   30 * 24 * time.Hour,
		JobRunsMaxAge:        30 * 24 * time.Hour,
		BatchSize:            1000,
	}
}

// RetentionServiceOptions groups dependencies for RetentionService.
type RetentionServiceOptions struct {
	Listings     core.ListingRepository     // Required: listing history deletes
	AlertRecords core.AlertRecordRepository // Required: alert record deletes
	JobRuns      core.JobRunRepository      // Required: job run deletes
	Config       RetentionConfig
	Logger       *slog.Logger // Optional: structured logger
}

// RetentionService deletes aged rows from the append-only tables in small
// batches.
type RetentionService struct {
	listings     core.ListingRepository
	alertRecords core.AlertRecordRepository
	jobRuns      core.JobRunRepository
	cfg          RetentionConfig
	logger       *slog.Logger
}

// NewRetentionService constructs a new RetentionService.
func NewRetentionService(opts RetentionServiceOptions) *RetentionService {
	if opts.Listings == nil {
		panic("ListingRepository is required")
	}
	if opts.AlertRecords == nil {
		panic("AlertRecordRepository is required")
	}
	if opts.JobRuns == nil {
		panic("JobRunRepository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	def := DefaultRetentionConfig()
	if cfg.ListingHistoryMaxAge <= 0 {
		cfg.ListingHistoryMaxAge = def.ListingHistoryMaxAge
	}
	if cfg.AlertRecordsMaxAge <= 0 {
		cfg.AlertRecordsMaxAge = def.AlertRecordsMaxAge
	}
	if cfg.JobRunsMaxAge <= 0 {
		cfg.JobRunsMaxAge = def.JobRunsMaxAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	return &RetentionService{
		listings:     opts.Listings,
		alertRecords: opts.AlertRecords,
		jobRuns:      opts.JobRuns,
		cfg:          cfg,
		logger:       opts.Logger.With("component", "retention_service"),
	}
}

// CleanupSummary counts rows deleted per table in one cleanup pass.
type CleanupSummary struct {
	ListingHistory int64
	AlertRecords   int64
	JobRuns        int64
}

// String renders the summary for job-run bookkeeping.
func (s CleanupSummary) String() string {
	return fmt.Sprintf("listing_history=%d alert_records=%d job_runs=%d",
		s.ListingHistory, s.AlertRecords, s.JobRuns)
}

type cleanupStep struct {
	name   string
	maxAge time.Duration
	delete func(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	total  *int64
}

// RunCleanup walks each retention target, deleting in batches until the
// target is drained. Steps run independently: a failing step is logged and
// the pass moves on, returning a joined error at the end.
func (s *RetentionService) RunCleanup(ctx context.Context) (CleanupSummary, error) {
	var summary CleanupSummary

	steps := []cleanupStep{
		{"listing_history", s.cfg.ListingHistoryMaxAge, s.listings.DeleteHistoryOlderThan, &summary.ListingHistory},
		{"alert_records", s.cfg.AlertRecordsMaxAge, s.alertRecords.DeleteOlderThan, &summary.AlertRecords},
		{"job_runs", s.cfg.JobRunsMaxAge, s.jobRuns.DeleteOlderThan, &summary.JobRuns},
	}

	var errs []error
	for _, step := range steps {
		deleted, err := s.drain(ctx, step)
		*step.total += deleted
		if err != nil {
			if isContextCancellation(err) {
				errs = append(errs, err)
				break
			}
			s.logger.ErrorContext(ctx, "cleanup step failed", "step", step.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	s.logger.InfoContext(ctx, "cleanup finished",
		"listing_history", summary.ListingHistory,
		"alert_records", summary.AlertRecords,
		"job_runs", summary.JobRuns,
	)
	return summary, errors.Join(errs...)
}

// drain deletes batches for one step until nothing is left, checking the
// context between batches.
func (s *RetentionService) drain(ctx context.Context, step cleanupStep) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		count, err := step.delete(ctx, step.maxAge, s.cfg.BatchSize)
		total += count
		if err != nil {
			return total, err
		}
		if count == 0 {
			return total, nil
		}

		s.logger.DebugContext(ctx, "cleanup batch deleted", "step", step.name, "count", count)
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
