package postgres

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	jobStruct    = database.NewStruct(new(models.EtlJob))
	jobLogStruct = database.NewStruct(new(models.EtlJobLog))
)

func (s *Store) CreateJob(ctx context.Context, job models.EtlJob) (*models.EtlJob, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.CreateJob")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(jobsTable).
		Cols("run_id", "job_name", "source", "status", "started_at", "completed_at",
			"records_processed", "records_failed", "error_message", "created_at").
		Values(job.RunID, job.JobName, job.Source, job.Status, job.StartedAt, job.CompletedAt,
			job.RecordsProcessed, job.RecordsFailed, job.ErrorMessage, s.now()).
		Returning(jobStruct.Columns()...)

	query, args := ib.Build()
	var created models.EtlJob
	if err := s.db.GetContext(ctx, &created, query, args...); err != nil {
		return nil, s.fail(ctx, err, "create job", map[string]any{"run_id": job.RunID, "job_name": job.JobName})
	}
	return &created, nil
}

func (s *Store) UpdateJob(ctx context.Context, job models.EtlJob) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.UpdateJob")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(jobsTable).
		Set(
			ub.Assign("status", job.Status),
			ub.Assign("started_at", job.StartedAt),
			ub.Assign("completed_at", job.CompletedAt),
			ub.Assign("records_processed", job.RecordsProcessed),
			ub.Assign("records_failed", job.RecordsFailed),
			ub.Assign("error_message", job.ErrorMessage),
		).
		Where(ub.Equal("id", job.ID))

	query, args := ub.Build()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.fail(ctx, err, "update job", map[string]any{"job_id": job.ID})
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %d: %w", job.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*models.EtlJob, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetJob")
	defer span.End()

	sb := jobStruct.SelectFrom(jobsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var job models.EtlJob
	if err := s.db.GetContext(ctx, &job, query, args...); err != nil {
		return nil, s.fail(ctx, err, fmt.Sprintf("get job %d", id), nil)
	}
	return &job, nil
}

func (s *Store) AddJobLog(ctx context.Context, entry models.EtlJobLog) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.AddJobLog")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(jobLogsTable).
		Cols("job_id", "log_level", "message", "details", "created_at").
		Values(entry.JobID, entry.Level, entry.Message, entry.Details, s.now())

	query, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.fail(ctx, err, "add job log", map[string]any{"job_id": entry.JobID})
	}
	return nil
}

func (s *Store) ListJobLogs(ctx context.Context, jobID int64) ([]models.EtlJobLog, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListJobLogs")
	defer span.End()

	sb := jobLogStruct.SelectFrom(jobLogsTable)
	sb.Where(sb.Equal("job_id", jobID))
	sb.OrderBy("id")

	query, args := sb.Build()
	logs := make([]models.EtlJobLog, 0)
	if err := s.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, s.fail(ctx, err, "list job logs", map[string]any{"job_id": jobID})
	}
	return logs, nil
}
