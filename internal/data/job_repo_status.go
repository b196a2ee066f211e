package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
)

// setClauseBuilder accumulates "column = $n" assignments for an UPDATE.
type setClauseBuilder struct {
	sets []string
	args []any
}

func (b *setClauseBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *setClauseBuilder) raw(assignment string) {
	b.sets = append(b.sets, assignment)
}

// UpdateStatus applies a partial status write. Returns false when the job does not exist.
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, upd model.StatusUpdate) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, ErrJobIDRequired
	}
	if !upd.Status.Valid() {
		return false, fmt.Errorf("invalid job status: %q", upd.Status)
	}

	b := &setClauseBuilder{}
	b.set("status", upd.Status)
	if upd.Progress != nil {
		b.set("progress", clampProgress(*upd.Progress))
	}
	if upd.ProgressMessage != nil {
		b.set("progress_message", *upd.ProgressMessage)
	}
	switch {
	case upd.ClearError:
		b.raw("error_message = NULL")
	case upd.ErrorMessage != nil:
		b.set("error_message", job.TruncateMessage(*upd.ErrorMessage, r.cfg.ErrorMessageMax))
	}
	if upd.StartedAt != nil {
		b.set("started_at", upd.StartedAt.UTC())
	}
	switch {
	case upd.ClearCompletedAt:
		b.raw("completed_at = NULL")
	case upd.CompletedAt != nil:
		b.set("completed_at", upd.CompletedAt.UTC())
	}
	if upd.ResetRetryCount {
		b.raw("retry_count = 0")
	}
	b.set("updated_at", r.now().UTC())

	b.args = append(b.args, id)
	query := fmt.Sprintf("UPDATE background_jobs SET %s WHERE id = $%d",
		strings.Join(b.sets, ", "), len(b.args))

	res, err := r.DB.ExecContext(ctx, query, b.args...)
	if err != nil {
		return false, fmt.Errorf("update job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// IncrementRetry bumps retry_count and returns the stored value.
func (r *JobRepo) IncrementRetry(ctx context.Context, id string) (int, error) {
	if strings.TrimSpace(id) == "" {
		return 0, ErrJobIDRequired
	}
	var count int
	err := r.DB.QueryRowContext(ctx, `
		UPDATE background_jobs
		SET retry_count = retry_count + 1,
		    updated_at = $2
		WHERE id = $1
		RETURNING retry_count
	`, id, r.now().UTC()).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrJobNotFound
		}
		return 0, fmt.Errorf("increment retry: %w", err)
	}
	return count, nil
}

// Complete marks a job completed and persists its result. result_data is stored as NULL when
// the serialized rows exceed MaxResultBytes; result_metadata then records the measured size.
func (r *JobRepo) Complete(ctx context.Context, id string, res model.WorkResult) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, ErrJobIDRequired
	}

	capped, err := model.CapResult(res, r.cfg.MaxResultBytes)
	if err != nil {
		return false, err
	}
	if capped.Data == nil {
		r.logger.WarnContext(ctx, "result data exceeds cap, storing metadata only",
			"job_id", id,
			"max_bytes", r.cfg.MaxResultBytes,
		)
	}

	now := r.now().UTC()
	var data any
	if capped.Data != nil {
		data = []byte(capped.Data)
	}

	out, err := r.DB.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'completed',
		    progress = 100,
		    progress_message = 'Complete',
		    result_metadata = $2::jsonb,
		    result_data = $3::jsonb,
		    error_message = NULL,
		    completed_at = $4,
		    updated_at = $4
		WHERE id = $1
	`, id, []byte(capped.Metadata), data, now)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
