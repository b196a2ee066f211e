package data

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	// MaxResultBytes caps the serialized result_data; larger payloads are dropped.
	MaxResultBytes int
	// ErrorMessageMax truncates error_message on write.
	ErrorMessageMax int
	Logger          *slog.Logger
	// Clock stamps created_at, updated_at and reaper cutoffs. Defaults to time.Now.
	Clock func() time.Time
}

// JobRepo provides database operations for the background_jobs table.
type JobRepo struct {
	DB     *sql.DB
	cfg    RepoConfig
	now    func() time.Time
	logger *slog.Logger
}

var (
	_ core.JobStore         = (*JobRepo)(nil)
	_ core.ReaperRepository = (*JobRepo)(nil)
)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	if cfg.MaxResultBytes <= 0 {
		cfg.MaxResultBytes = model.DefaultMaxResultBytes
	}
	if cfg.ErrorMessageMax <= 0 {
		cfg.ErrorMessageMax = job.DefaultErrorMessageMax
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:     db,
		cfg:    cfg,
		now:    clock,
		logger: logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  session_id,
  job_name,
  job_type,
  status,
  progress,
  progress_message,
  parameters,
  retry_count,
  result_metadata,
  result_data,
  error_message,
  created_at,
  started_at,
  completed_at,
  updated_at
`

// jobSummaryColumns omits result_data, which can be up to MaxResultBytes per row.
const jobSummaryColumns = `
  id,
  session_id,
  job_name,
  job_type,
  status,
  progress,
  progress_message,
  parameters,
  retry_count,
  result_metadata,
  NULL::jsonb AS result_data,
  error_message,
  created_at,
  started_at,
  completed_at,
  updated_at
`
