package models

import "time"

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusPartial   JobStatus = "partial"
)

// LogLevel is the severity of a job log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// EtlJob tracks one pipeline phase. It is an audit record.
type EtlJob struct {
	ID               int64      `json:"id" db:"id"`
	RunID            string     `json:"run_id" db:"run_id"`
	JobName          string     `json:"job_name" db:"job_name"`
	Source           string     `json:"source" db:"source"`
	Status           JobStatus  `json:"status" db:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	RecordsProcessed int        `json:"records_processed" db:"records_processed"`
	RecordsFailed    int        `json:"records_failed" db:"records_failed"`
	ErrorMessage     *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// EtlJobLog is a timestamped entry attached to a job.
type EtlJobLog struct {
	ID        int64     `json:"id" db:"id"`
	JobID     int64     `json:"job_id" db:"job_id"`
	Level     LogLevel  `json:"log_level" db:"log_level"`
	Message   string    `json:"message" db:"message"`
	Details   *string   `json:"details,omitempty" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EtlJobWithLogs is the job read model returned by the API.
type EtlJobWithLogs struct {
	EtlJob
	Logs []EtlJobLog `json:"logs"`
}

// EtlReport summarizes a full ingestion run.
type EtlReport struct {
	RunID                string             `json:"run_id"`
	JobIDs               []int64            `json:"job_ids"`
	RawgGamesInserted    int                `json:"rawg_games_inserted"`
	RawgGamesSkipped     int                `json:"rawg_games_skipped"`
	IgdbGamesInserted    int                `json:"igdb_games_inserted"`
	IgdbGamesSkipped     int                `json:"igdb_games_skipped"`
	SimilaritiesInserted int                `json:"similarities_inserted"`
	GamesMerged          int                `json:"games_merged"`
	Recompute            *ComputationReport `json:"recompute,omitempty"`
	DurationMs           int64              `json:"duration_ms"`
}
