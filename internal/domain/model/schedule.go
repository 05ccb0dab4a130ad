//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"
)

// JobType identifies a recurring task kind. The set is closed: dispatch is a
// compile-checked switch, not a string-keyed lookup, so adding a job type
// forces every dispatcher to handle it.
type JobType string

const (
	JobTypeMonitoringCycle JobType = "monitoring_cycle"
	JobTypeDataCleanup     JobType = "data_cleanup"
)

// Valid reports whether the job type is a known recurring task kind.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeMonitoringCycle, JobTypeDataCleanup:
		return true
	default:
		return false
	}
}

// ParseJobType normalizes a job type string and reports whether it is supported.
func ParseJobType(value string) (JobType, bool) {
	t := JobType(strings.ToLower(strings.TrimSpace(value)))
	if t.Valid() {
		return t, true
	}
	return "", false
}

// ScheduledJobStatus is the activation state of a recurring job.
type ScheduledJobStatus string

const (
	ScheduledJobStatusActive ScheduledJobStatus = "active"
	ScheduledJobStatusPaused ScheduledJobStatus = "paused"
)

// Valid reports whether the status is supported.
func (s ScheduledJobStatus) Valid() bool {
	switch s {
	case ScheduledJobStatusActive, ScheduledJobStatusPaused:
		return true
	default:
		return false
	}
}

// ScheduledJob is one recurring task definition. NextRunAt is always advanced
// by IntervalHours after a run, whether the run succeeded or failed.
type ScheduledJob struct {
	ID            string             `json:"id"                    db:"id"`
	JobType       JobType            `json:"job_type"              db:"job_type"`
	Status        ScheduledJobStatus `json:"status"                db:"status"`
	IntervalHours int                `json:"interval_hours"        db:"interval_hours"`
	LastRunAt     *time.Time         `json:"last_run_at,omitempty" db:"last_run_at"`
	NextRunAt     time.Time          `json:"next_run_at"           db:"next_run_at"`
	CreatedAt     time.Time          `json:"created_at"            db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"            db:"updated_at"`
}

// Interval returns the job's run interval as a duration.
func (j *ScheduledJob) Interval() time.Duration {
	return time.Duration(j.IntervalHours) * time.Hour
}

// JobRunStatus is the lifecycle state of one execution attempt.
type JobRunStatus string

const (
	JobRunStatusRunning   JobRunStatus = "running"
	JobRunStatusCompleted JobRunStatus = "completed"
	JobRunStatusFailed    JobRunStatus = "failed"
)

// Valid reports whether the run status is supported.
func (s JobRunStatus) Valid() bool {
	switch s {
	case JobRunStatusRunning, JobRunStatusCompleted, JobRunStatusFailed:
		return true
	default:
		return false
	}
}

// JobRun is one append-only audit row per execution attempt.
type JobRun struct {
	ID            string       `json:"id"                       db:"id"`
	JobID         string       `json:"job_id"                   db:"job_id"`
	Status        JobRunStatus `json:"status"                   db:"status"`
	StartedAt     time.Time    `json:"started_at"               db:"started_at"`
	EndedAt       *time.Time   `json:"ended_at,omitempty"       db:"ended_at"`
	ResultSummary *string      `json:"result_summary,omitempty" db:"result_summary"`
	ErrorMessage  *string      `json:"error_message,omitempty"  db:"error_message"`
}
