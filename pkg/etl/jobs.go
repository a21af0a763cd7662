package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

// JobTracker records pipeline phases as jobs with an audit log.
type JobTracker struct {
	jobs   store.JobStore
	logger ectologger.Logger
}

// NewJobTracker creates a JobTracker.
func NewJobTracker(jobs store.JobStore, logger ectologger.Logger) *JobTracker {
	return &JobTracker{jobs: jobs, logger: logger}
}

// Start creates a running job.
func (t *JobTracker) Start(ctx context.Context, runID, name, source string) (*Job, error) {
	now := time.Now().UTC()
	job, err := t.jobs.CreateJob(ctx, models.EtlJob{
		RunID:     runID,
		JobName:   name,
		Source:    source,
		Status:    models.JobStatusRunning,
		StartedAt: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("create job %s: %w", name, err)
	}

	return &Job{
		jobs: t.jobs,
		job:  *job,
		logger: t.logger.WithFields(map[string]any{
			"run_id":   runID,
			"job_id":   job.ID,
			"job_name": name,
			"source":   source,
		}),
	}, nil
}

// Job is one running pipeline phase. Every entry written to its log is also written
// through the structured logger; a failure to persist an entry never fails the phase.
type Job struct {
	jobs   store.JobStore
	job    models.EtlJob
	logger ectologger.Logger
}

// ID returns the job id.
func (j *Job) ID() int64 {
	return j.job.ID
}

// Snapshot returns the current job record.
func (j *Job) Snapshot() models.EtlJob {
	return j.job
}

func (j *Job) Infof(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	j.logger.WithContext(ctx).Info(msg)
	j.append(ctx, models.LogLevelInfo, msg, nil)
}

func (j *Job) Warnf(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	j.logger.WithContext(ctx).Warn(msg)
	j.append(ctx, models.LogLevelWarn, msg, nil)
}

// Errorf logs an error entry with err as its details.
func (j *Job) Errorf(ctx context.Context, err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	j.logger.WithContext(ctx).WithError(err).Error(msg)

	var details *string
	if err != nil {
		d := err.Error()
		details = &d
	}
	j.append(ctx, models.LogLevelError, msg, details)
}

func (j *Job) append(ctx context.Context, level models.LogLevel, msg string, details *string) {
	err := j.jobs.AddJobLog(ctx, models.EtlJobLog{
		JobID:   j.job.ID,
		Level:   level,
		Message: msg,
		Details: details,
	})
	if err != nil {
		j.logger.WithContext(ctx).WithError(err).Warn("Failed to persist job log entry")
	}
}

// Complete finishes the job as completed, or partial when any record failed.
func (j *Job) Complete(ctx context.Context, processed, failed int) error {
	status := models.JobStatusCompleted
	if failed > 0 {
		status = models.JobStatusPartial
	}
	return j.finish(ctx, status, processed, failed, nil)
}

// Fail finishes the job as failed with cause as its error message.
func (j *Job) Fail(ctx context.Context, cause error) error {
	msg := cause.Error()
	return j.finish(ctx, models.JobStatusFailed, j.job.RecordsProcessed, j.job.RecordsFailed, &msg)
}

func (j *Job) finish(ctx context.Context, status models.JobStatus, processed, failed int, errMsg *string) error {
	now := time.Now().UTC()
	j.job.Status = status
	j.job.CompletedAt = &now
	j.job.RecordsProcessed = processed
	j.job.RecordsFailed = failed
	j.job.ErrorMessage = errMsg

	if err := j.jobs.UpdateJob(ctx, j.job); err != nil {
		return fmt.Errorf("update job %d: %w", j.job.ID, err)
	}
	return nil
}
