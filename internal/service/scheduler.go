package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/flipscout/flipscout/internal/observability/metrics"
	"github.com/flipscout/flipscout/internal/observability/notify"
)

// MonitoringRunner executes one full monitoring cycle. Implemented by
// MonitorService.
type MonitoringRunner interface {
	RunCycle(ctx context.Context) (*CycleSummary, error)
}

// DiscoveryRunner runs listing discovery across all products. Implemented by
// DiscoveryService.
type DiscoveryRunner interface {
	DiscoverAll(ctx context.Context, batchSize int) (DiscoveryResult, error)
}

// CleanupRunner executes one retention pass. Implemented by RetentionService.
type CleanupRunner interface {
	RunCleanup(ctx context.Context) (CleanupSummary, error)
}

// SchedulerConfig groups the scheduler loop's tunables.
type SchedulerConfig struct {
	// PollInterval is how often the loop checks for due jobs.
	PollInterval time.Duration
	// DiscoveryBatchSize is the product page size for the discovery phase of
	// a monitoring cycle.
	DiscoveryBatchSize int
}

// DefaultSchedulerConfig returns the stock 1m poll / 100-product batches.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval:       time.Minute,
		DiscoveryBatchSize: 100,
	}
}

// SchedulerServiceOptions groups dependencies for SchedulerService.
type SchedulerServiceOptions struct {
	Jobs         core.ScheduledJobRepository // Required: job definitions
	Runs         core.JobRunRepository       // Required: run audit trail
	Monitor      MonitoringRunner            // Required: monitoring cycle
	Discovery    DiscoveryRunner             // Required: listing discovery
	Cleanup      CleanupRunner               // Required: retention pass
	Config       SchedulerConfig
	Metrics      *metrics.JobMetrics // Optional: job run collectors
	FailureSink  notify.Sink         // Optional: operator notification on failed runs
	TimeProvider data.TimeProvider   // Optional: defaults to real time
	Logger       *slog.Logger        // Optional: structured logger
}

// SchedulerService drives the recurring jobs: it polls for due work, takes a
// per-job-type advisory lock so concurrent schedulers never double-run, and
// always advances next_run_at whether the run succeeded or failed.
type SchedulerService struct {
	jobs         core.ScheduledJobRepository
	runs         core.JobRunRepository
	monitor      MonitoringRunner
	discovery    DiscoveryRunner
	cleanup      CleanupRunner
	cfg          SchedulerConfig
	metrics      *metrics.JobMetrics
	failureSink  notify.Sink
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewSchedulerService constructs a new SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) *SchedulerService {
	if opts.Jobs == nil {
		panic("ScheduledJobRepository is required")
	}
	if opts.Runs == nil {
		panic("JobRunRepository is required")
	}
	if opts.Monitor == nil {
		panic("MonitoringRunner is required")
	}
	if opts.Discovery == nil {
		panic("DiscoveryRunner is required")
	}
	if opts.Cleanup == nil {
		panic("CleanupRunner is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	def := DefaultSchedulerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.DiscoveryBatchSize <= 0 {
		cfg.DiscoveryBatchSize = def.DiscoveryBatchSize
	}

	return &SchedulerService{
		jobs:         opts.Jobs,
		runs:         opts.Runs,
		monitor:      opts.Monitor,
		discovery:    opts.Discovery,
		cleanup:      opts.Cleanup,
		cfg:          cfg,
		metrics:      opts.Metrics,
		failureSink:  opts.FailureSink,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger.With("component", "scheduler_service"),
	}
}

// EnsureDefaults seeds the default job definitions if they are missing.
func (s *SchedulerService) EnsureDefaults(ctx context.Context) error {
	if err := s.jobs.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("ensure default jobs: %w", err)
	}
	return nil
}

// Run polls for due jobs until the context is canceled. The first pass runs
// immediately.
func (s *SchedulerService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started", "poll_interval", s.cfg.PollInterval)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.ProcessDueJobs(ctx); err != nil {
			if isContextCancellation(err) {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "scheduler pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessDueJobs runs every job whose next_run_at has passed and returns how
// many this scheduler instance executed. Jobs locked by another instance are
// skipped silently.
func (s *SchedulerService) ProcessDueJobs(ctx context.Context) (int, error) {
	now := s.timeProvider.Now().UTC()

	due, err := s.jobs.FindDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find due jobs: %w", err)
	}

	processed := 0
	for _, job := range due {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		ran, err := s.runJob(ctx, job)
		if err != nil {
			if isContextCancellation(err) {
				return processed, err
			}
			s.logger.ErrorContext(ctx, "job execution failed", "job_type", job.JobType, "error", err)
		}
		if ran {
			processed++
		} else if err == nil {
			s.metrics.IncSkipped(string(job.JobType))
		}
	}
	return processed, nil
}

// runJob executes one due job under its advisory lock. Reschedule happens
// inside the locked section, after the run is recorded, so a failing job
// still moves to its next slot instead of being retried every poll.
func (s *SchedulerService) runJob(ctx context.Context, job *model.ScheduledJob) (bool, error) {
	return s.jobs.TryWithJobLock(ctx, job.JobType, func(ctx context.Context, _ *sql.Tx) error {
		run, err := s.runs.Start(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("start job run: %w", err)
		}

		startedAt := s.timeProvider.Now().UTC()
		s.logger.InfoContext(ctx, "job started", "job_type", job.JobType, "run_id", run.ID)

		summary, execErr := s.execute(ctx, job.JobType)
		duration := s.timeProvider.Now().UTC().Sub(startedAt)

		if execErr != nil {
			s.metrics.ObserveRun(string(job.JobType), metrics.ResultError, duration)
			if failErr := s.runs.Fail(ctx, run.ID, execErr.Error()); failErr != nil {
				s.logger.ErrorContext(ctx, "record job failure failed", "run_id", run.ID, "error", failErr)
			}
			s.logger.ErrorContext(ctx, "job failed", "job_type", job.JobType, "run_id", run.ID, "error", execErr)
			s.notifyFailure(ctx, job, run.ID, execErr)
		} else {
			s.metrics.ObserveRun(string(job.JobType), metrics.ResultSuccess, duration)
			if completeErr := s.runs.Complete(ctx, run.ID, summary); completeErr != nil {
				s.logger.ErrorContext(ctx, "record job completion failed", "run_id", run.ID, "error", completeErr)
			}
			s.logger.InfoContext(ctx, "job completed", "job_type", job.JobType, "run_id", run.ID, "summary", summary)
		}

		if reschedErr := s.jobs.Reschedule(ctx, data.RescheduleParams{
			ID:        job.ID,
			LastRunAt: startedAt,
			NextRunAt: startedAt.Add(job.Interval()),
		}); reschedErr != nil {
			return fmt.Errorf("reschedule job: %w", reschedErr)
		}

		return execErr
	})
}

// notifyFailure pushes a failed run to the operator sink. Delivery is best
// effort; the run outcome is already durable in job_runs.
func (s *SchedulerService) notifyFailure(ctx context.Context, job *model.ScheduledJob, runID string, execErr error) {
	if s.failureSink == nil {
		return
	}
	payload := notify.JobFailurePayload{
		JobID:      job.ID,
		JobType:    string(job.JobType),
		RunID:      runID,
		Error:      execErr.Error(),
		Severity:   notify.SeverityCritical,
		OccurredAt: s.timeProvider.Now().UTC(),
	}
	if err := s.failureSink.SendJobFailure(ctx, payload); err != nil {
		s.logger.WarnContext(ctx, "job failure notification failed", "job_type", job.JobType, "error", err)
	}
}

// execute dispatches on the closed job type set. A monitoring cycle runs
// discovery first so freshly found listings are monitored in the same pass.
func (s *SchedulerService) execute(ctx context.Context, jobType model.JobType) (string, error) {
	switch jobType {
	case model.JobTypeMonitoringCycle:
		disc, err := s.discovery.DiscoverAll(ctx, s.cfg.DiscoveryBatchSize)
		if err != nil {
			return "", fmt.Errorf("discovery: %w", err)
		}
		cycle, err := s.monitor.RunCycle(ctx)
		if err != nil {
			return "", fmt.Errorf("monitoring: %w", err)
		}
		return fmt.Sprintf("discovered=%d created=%d updated=%d %s",
			disc.Found, disc.Created, disc.Updated, cycle.String()), nil

	case model.JobTypeDataCleanup:
		summary, err := s.cleanup.RunCleanup(ctx)
		if err != nil {
			return "", fmt.Errorf("cleanup: %w", err)
		}
		return summary.String(), nil

	default:
		return "", fmt.Errorf("unknown job type %q", jobType)
	}
}
