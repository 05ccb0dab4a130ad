package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/flipscout/flipscout/internal/observability/metrics"
	"github.com/flipscout/flipscout/internal/observability/notify"
)

var schedulerTestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type schedulerFixture struct {
	jobs      *mockScheduledJobRepo
	runs      *mockJobRunRepo
	monitor   *mockMonitoringRunner
	discovery *mockDiscoveryRunner
	cleanup   *mockCleanupRunner
	svc       *SchedulerService
}

func newSchedulerFixture() *schedulerFixture {
	f := &schedulerFixture{
		jobs:      &mockScheduledJobRepo{},
		runs:      &mockJobRunRepo{},
		monitor:   &mockMonitoringRunner{},
		discovery: &mockDiscoveryRunner{},
		cleanup:   &mockCleanupRunner{},
	}
	f.svc = NewSchedulerService(SchedulerServiceOptions{
		Jobs:         f.jobs,
		Runs:         f.runs,
		Monitor:      f.monitor,
		Discovery:    f.discovery,
		Cleanup:      f.cleanup,
		Config:       SchedulerConfig{PollInterval: time.Minute, DiscoveryBatchSize: 50},
		TimeProvider: data.NewFixedTimeProvider(schedulerTestNow),
	})
	return f
}

func dueJob(jobType model.JobType, intervalHours int) *model.ScheduledJob {
	return &model.ScheduledJob{
		ID:            "job-" + string(jobType),
		JobType:       jobType,
		Status:        model.ScheduledJobStatusActive,
		IntervalHours: intervalHours,
		NextRunAt:     schedulerTestNow.Add(-time.Minute),
	}
}

func TestSchedulerService_ProcessDueJobs_MonitoringCycle(t *testing.T) {
	f := newSchedulerFixture()
	job := dueJob(model.JobTypeMonitoringCycle, 24)

	f.jobs.On("FindDue", mock.Anything, schedulerTestNow).Return([]*model.ScheduledJob{job}, nil)
	f.jobs.On("TryWithJobLock", mock.Anything, model.JobTypeMonitoringCycle, mock.Anything).Return(true, nil)
	f.runs.On("Start", mock.Anything, job.ID).Return(&model.JobRun{ID: "run-1", JobID: job.ID}, nil)
	f.discovery.On("DiscoverAll", mock.Anything, 50).Return(DiscoveryResult{Found: 3, Created: 2, Updated: 1}, nil)
	f.monitor.On("RunCycle", mock.Anything).Return(&CycleSummary{Checked: 5, Changed: 1, AlertsSent: 1}, nil)
	f.runs.On("Complete", mock.Anything, "run-1", mock.MatchedBy(func(summary string) bool {
		return assert.Contains(t, summary, "discovered=3") && assert.Contains(t, summary, "alerts_sent=1")
	})).Return(nil)
	f.jobs.On("Reschedule", mock.Anything, data.RescheduleParams{
		ID:        job.ID,
		LastRunAt: schedulerTestNow,
		NextRunAt: schedulerTestNow.Add(24 * time.Hour),
	}).Return(nil)

	processed, err := f.svc.ProcessDueJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	f.jobs.AssertExpectations(t)
	f.runs.AssertExpectations(t)
	f.monitor.AssertExpectations(t)
	f.discovery.AssertExpectations(t)
}

func TestSchedulerService_ProcessDueJobs_DataCleanup(t *testing.T) {
	f := newSchedulerFixture()
	job := dueJob(model.JobTypeDataCleanup, 168)

	f.jobs.On("FindDue", mock.Anything, schedulerTestNow).Return([]*model.ScheduledJob{job}, nil)
	f.jobs.On("TryWithJobLock", mock.Anything, model.JobTypeDataCleanup, mock.Anything).Return(true, nil)
	f.runs.On("Start", mock.Anything, job.ID).Return(&model.JobRun{ID: "run-1", JobID: job.ID}, nil)
	f.cleanup.On("RunCleanup", mock.Anything).Return(CleanupSummary{ListingHistory: 40, JobRuns: 2}, nil)
	f.runs.On("Complete", mock.Anything, "run-1", "listing_history=40 alert_records=0 job_runs=2").Return(nil)
	f.jobs.On("Reschedule", mock.Anything, data.RescheduleParams{
		ID:        job.ID,
		LastRunAt: schedulerTestNow,
		NextRunAt: schedulerTestNow.Add(168 * time.Hour),
	}).Return(nil)

	processed, err := f.svc.ProcessDueJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	f.cleanup.AssertExpectations(t)
	f.monitor.AssertNotCalled(t, "RunCycle", mock.Anything)
}

func TestSchedulerService_ProcessDueJobs_FailedRunStillReschedules(t *testing.T) {
	f := newSchedulerFixture()
	job := dueJob(model.JobTypeMonitoringCycle, 24)

	f.jobs.On("FindDue", mock.Anything, schedulerTestNow).Return([]*model.ScheduledJob{job}, nil)
	f.jobs.On("TryWithJobLock", mock.Anything, model.JobTypeMonitoringCycle, mock.Anything).Return(true, nil)
	f.runs.On("Start", mock.Anything, job.ID).Return(&model.JobRun{ID: "run-1", JobID: job.ID}, nil)
	f.discovery.On("DiscoverAll", mock.Anything, 50).Return(DiscoveryResult{}, errors.New("crawler down"))
	f.runs.On("Fail", mock.Anything, "run-1", mock.MatchedBy(func(msg string) bool {
		return assert.Contains(t, msg, "crawler down")
	})).Return(nil)
	f.jobs.On("Reschedule", mock.Anything, data.RescheduleParams{
		ID:        job.ID,
		LastRunAt: schedulerTestNow,
		NextRunAt: schedulerTestNow.Add(24 * time.Hour),
	}).Return(nil)

	processed, err := f.svc.ProcessDueJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	f.jobs.AssertExpectations(t)
	f.runs.AssertExpectations(t)
	f.runs.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulerService_ProcessDueJobs_FailedRunNotifiesSink(t *testing.T) {
	jobs := &mockScheduledJobRepo{}
	runs := &mockJobRunRepo{}
	monitor := &mockMonitoringRunner{}
	discovery := &mockDiscoveryRunner{}
	cleanup := &mockCleanupRunner{}

	var got notify.JobFailurePayload
	svc := NewSchedulerService(SchedulerServiceOptions{
		Jobs:      jobs,
		Runs:      runs,
		Monitor:   monitor,
		Discovery: discovery,
		Cleanup:   cleanup,
		Config:    SchedulerConfig{PollInterval: time.Minute, DiscoveryBatchSize: 50},
		Metrics:   metrics.NewJobMetrics(),
		FailureSink: notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
			got = payload
			return nil
		}),
		TimeProvider: data.NewFixedTimeProvider(schedulerTestNow),
	})

	job := dueJob(model.JobTypeDataCleanup, 168)
	jobs.On("FindDue", mock.Anything, schedulerTestNow).Return([]*model.ScheduledJob{job}, nil)
	jobs.On("TryWithJobLock", mock.Anything, model.JobTypeDataCleanup, mock.Anything).Return(true, nil)
	runs.On("Start", mock.Anything, job.ID).Return(&model.JobRun{ID: "run-7", JobID: job.ID}, nil)
	cleanup.On("RunCleanup", mock.Anything).Return(CleanupSummary{}, errors.New("disk full"))
	runs.On("Fail", mock.Anything, "run-7", mock.Anything).Return(nil)
	jobs.On("Reschedule", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.ProcessDueJobs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, job.ID, got.JobID)
	assert.Equal(t, "data_cleanup", got.JobType)
	assert.Equal(t, "run-7", got.RunID)
	assert.Contains(t, got.Error, "disk full")
	assert.Equal(t, notify.SeverityCritical, got.Severity)
	assert.True(t, got.OccurredAt.Equal(schedulerTestNow))
}

func TestSchedulerService_ProcessDueJobs_LockHeldElsewhereSkips(t *testing.T) {
	f := newSchedulerFixture()
	job := dueJob(model.JobTypeMonitoringCycle, 24)

	f.jobs.On("FindDue", mock.Anything, schedulerTestNow).Return([]*model.ScheduledJob{job}, nil)
	f.jobs.On("TryWithJobLock", mock.Anything, model.JobTypeMonitoringCycle, mock.Anything).Return(false, nil)

	processed, err := f.svc.ProcessDueJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	f.runs.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	f.jobs.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything)
}

func TestSchedulerService_ProcessDueJobs_NothingDue(t *testing.T) {
	f := newSchedulerFixture()

	f.jobs.On("FindDue", mock.Anything, schedulerTestNow).Return([]*model.ScheduledJob{}, nil)

	processed, err := f.svc.ProcessDueJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestSchedulerService_ProcessDueJobs_FindDueError(t *testing.T) {
	f := newSchedulerFixture()

	f.jobs.On("FindDue", mock.Anything, schedulerTestNow).Return(nil, errors.New("db down"))

	_, err := f.svc.ProcessDueJobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find due jobs")
}

func TestSchedulerService_EnsureDefaults(t *testing.T) {
	f := newSchedulerFixture()

	f.jobs.On("EnsureDefaults", mock.Anything).Return(nil)

	require.NoError(t, f.svc.EnsureDefaults(context.Background()))
	f.jobs.AssertExpectations(t)
}
