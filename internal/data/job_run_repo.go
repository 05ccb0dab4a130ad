package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flipscout/flipscout/internal/data/pgxutil"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/jackc/pgx/v5"
)

const jobRunColumns = `id, job_id, status, started_at, ended_at, result_summary, error_message`

// JobRunRepo provides database operations for the per-execution audit trail.
type JobRunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobRunRepo creates a new JobRunRepo instance with the given database connection.
func NewJobRunRepo(db *sql.DB) *JobRunRepo {
	return &JobRunRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobRunRepoWithTimeProvider creates a JobRunRepo with a custom TimeProvider (useful for testing).
func NewJobRunRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobRunRepo {
	return &JobRunRepo{DB: db, timeProvider: tp}
}

// Start records the beginning of an execution attempt.
func (r *JobRunRepo) Start(ctx context.Context, jobID string) (*model.JobRun, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}

	now := r.timeProvider.Now().UTC()
	query := `
		INSERT INTO job_runs (job_id, status, started_at)
		VALUES ($1, $2, $3)
		RETURNING ` + jobRunColumns

	var run model.JobRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, jobID, model.JobRunStatusRunning, now)
		if err != nil {
			return err
		}
		defer rows.Close()

		run, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.JobRun])
		return err
	})
	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, ErrScheduledJobNotFound
		}
		return nil, fmt.Errorf("start job run: %w", err)
	}
	return &run, nil
}

// Complete marks a run as finished successfully, with an optional summary of
// what the run did.
func (r *JobRunRepo) Complete(ctx context.Context, runID string, summary string) error {
	return r.finish(ctx, runID, model.JobRunStatusCompleted, summary, "")
}

// Fail marks a run as finished unsuccessfully with the failure message.
func (r *JobRunRepo) Fail(ctx context.Context, runID string, errMessage string) error {
	return r.finish(ctx, runID, model.JobRunStatusFailed, "", errMessage)
}

func (r *JobRunRepo) finish(ctx context.Context, runID string, status model.JobRunStatus, summary, errMessage string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_runs
		SET status = $2, ended_at = $3, result_summary = NULLIF($4, ''), error_message = NULLIF($5, '')
		WHERE id = $1 AND status = $6`,
		runID, status, now, summary, errMessage, model.JobRunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish job run: %w", err)
	}
	return requireAffected(res, ErrJobRunNotFound)
}

// HasRunning reports whether the job currently has an execution attempt in
// flight. The advisory lock is the real mutual-exclusion mechanism; this is a
// cheap pre-check that avoids run-row churn.
func (r *JobRunRepo) HasRunning(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_runs WHERE job_id = $1 AND status = $2)`,
		jobID, model.JobRunStatusRunning,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check running job runs: %w", err)
	}
	return exists, nil
}

// ListRecent returns the most recent runs for a job, newest first.
func (r *JobRunRepo) ListRecent(ctx context.Context, jobID string, limit int) ([]*model.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + jobRunColumns + ` FROM job_runs WHERE job_id = $1 ORDER BY started_at DESC, id DESC LIMIT $2`

	var runs []*model.JobRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, jobID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		runs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.JobRun])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	return runs, nil
}

// DeleteOlderThan prunes finished runs older than maxAge, at most batchSize
// rows per call. In-flight runs are never pruned. Returns the number of rows
// deleted.
func (r *JobRunRepo) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	cutoff := r.timeProvider.Now().UTC().Add(-maxAge)

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM job_runs
		WHERE id IN (
			SELECT id FROM job_runs
			WHERE started_at < $1 AND status <> $2
			LIMIT $3
		)`, cutoff, model.JobRunStatusRunning, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old job runs: %w", err)
	}
	return res.RowsAffected()
}
