package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/flipscout/flipscout/internal/data/pgxutil"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/jackc/pgx/v5"
)

const scheduledJobColumns = `id, job_type, status, interval_hours, last_run_at, next_run_at, created_at, updated_at`

// ScheduledJobRepo provides database operations for recurring job definitions.
type ScheduledJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewScheduledJobRepo creates a new ScheduledJobRepo instance with the given database connection.
func NewScheduledJobRepo(db *sql.DB) *ScheduledJobRepo {
	return &ScheduledJobRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewScheduledJobRepoWithTimeProvider creates a ScheduledJobRepo with a custom TimeProvider (useful for testing).
func NewScheduledJobRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ScheduledJobRepo {
	return &ScheduledJobRepo{DB: db, timeProvider: tp}
}

// defaultJobIntervals is the bootstrap seed: one row per recurring task kind.
var defaultJobIntervals = map[model.JobType]int{
	model.JobTypeMonitoringCycle: 24,
	model.JobTypeDataCleanup:     168,
}

// EnsureDefaults seeds the default recurring jobs when they are missing.
// Existing rows are left untouched, so interval edits survive restarts.
func (r *ScheduledJobRepo) EnsureDefaults(ctx context.Context) error {
	now := r.timeProvider.Now().UTC()
	for jobType, hours := range defaultJobIntervals {
		if _, err := r.DB.ExecContext(ctx, `
			INSERT INTO scheduled_jobs (job_type, status, interval_hours, next_run_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (job_type) DO NOTHING`,
			jobType, model.ScheduledJobStatusActive, hours, now, now,
		); err != nil {
			return fmt.Errorf("seed scheduled job %s: %w", jobType, err)
		}
	}
	return nil
}

// FindDue selects active jobs whose next_run_at has passed, oldest-due
// first — a simple fairness rule.
func (r *ScheduledJobRepo) FindDue(ctx context.Context, now time.Time) ([]*model.ScheduledJob, error) {
	query := `
		SELECT ` + scheduledJobColumns + `
		FROM scheduled_jobs
		WHERE status = $1 AND next_run_at <= $2
		ORDER BY next_run_at ASC, created_at ASC`

	var jobs []*model.ScheduledJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, model.ScheduledJobStatusActive, now.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()

		jobs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.ScheduledJob])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query due scheduled jobs: %w", err)
	}
	return jobs, nil
}

// GetByType retrieves a job definition by its task kind.
func (r *ScheduledJobRepo) GetByType(ctx context.Context, jobType model.JobType) (*model.ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE job_type = $1`

	var job model.ScheduledJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, jobType)
		if err != nil {
			return err
		}
		defer rows.Close()

		job, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ScheduledJob])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduledJobNotFound
		}
		return nil, fmt.Errorf("get scheduled job: %w", err)
	}
	return &job, nil
}

// List returns every job definition, for operator inspection.
func (r *ScheduledJobRepo) List(ctx context.Context) ([]*model.ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs ORDER BY job_type ASC`

	var jobs []*model.ScheduledJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		jobs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.ScheduledJob])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	return jobs, nil
}

// RescheduleParams carries the post-run bookkeeping for a job definition.
type RescheduleParams struct {
	ID        string
	LastRunAt time.Time
	NextRunAt time.Time
}

// Reschedule records a finished run and advances next_run_at. Called after
// every run, success or failure, so a failing job never drops off the schedule.
func (r *ScheduledJobRepo) Reschedule(ctx context.Context, params RescheduleParams) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET last_run_at = $2, next_run_at = $3, updated_at = $4
		WHERE id = $1`,
		params.ID, params.LastRunAt.UTC(), params.NextRunAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return requireAffected(res, ErrScheduledJobNotFound)
}

// SetStatus flips a job between active and paused.
func (r *ScheduledJobRepo) SetStatus(ctx context.Context, id string, status model.ScheduledJobStatus) error {
	if !status.Valid() {
		return errors.New("invalid scheduled job status")
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, now,
	)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return requireAffected(res, ErrScheduledJobNotFound)
}

// fnvHash constrains an FNV-1a 64-bit hash into the BIGINT range Postgres
// advisory locks accept.
func fnvHash(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	u := h.Sum64()
	if u > uint64(math.MaxInt64) {
		u %= uint64(math.MaxInt64)
	}
	return int64(u) // #nosec G115 -- value is explicitly bounded to <= MaxInt64 before casting to int64.
}

// TryWithJobLock attempts to acquire a transaction-scoped advisory lock for
// the job type and, when acquired, executes fn within the same transaction.
// This is what keeps a job from running concurrently with itself across
// replicas. Return semantics:
//   - (false, nil): lock not acquired; fn was not executed
//   - (true, nil): lock acquired; fn executed and succeeded
//   - (true, err): lock acquired; fn executed and failed with err
func (r *ScheduledJobRepo) TryWithJobLock(
	ctx context.Context,
	jobType model.JobType,
	fn func(context.Context, *sql.Tx) error,
) (bool, error) {
	lockKey := fnvHash(string(jobType))

	var locked bool
	var fnErr error

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1)", lockKey).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock for job %s: %w", jobType, err)
		}
		if !locked {
			return nil
		}
		// The transaction commits regardless of fn's outcome; fn's error is
		// surfaced separately so run bookkeeping inside fn is preserved.
		fnErr = fn(ctx, tx)
		return nil
	}})
	if err != nil {
		return false, err
	}
	return locked, fnErr
}
