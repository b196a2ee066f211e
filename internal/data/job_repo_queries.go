package data

import (
	"context"
	"fmt"

	"github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
)

// GetPendingJobs returns pending and queued jobs in FIFO order.
func (r *JobRepo) GetPendingJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.queryJobs(ctx, `
		SELECT `+jobSummaryColumns+`
		FROM background_jobs
		WHERE status IN ('pending', 'queued')
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
}

// GetStaleRunningJobs returns every job recorded as running. After a restart none of them
// can have a live executor in this process.
func (r *JobRepo) GetStaleRunningJobs(ctx context.Context) ([]*model.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobSummaryColumns+`
		FROM background_jobs
		WHERE status = 'running'
		ORDER BY created_at ASC, id ASC
	`)
}

// MarkStaleJobsAsFailed fails the given jobs in one statement, skipping any that left running.
func (r *JobRepo) MarkStaleJobsAsFailed(ctx context.Context, ids []string, message string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := r.now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'failed',
		    error_message = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = ANY($1::uuid[])
		  AND status = 'running'
	`, ids, job.TruncateMessage(message, r.cfg.ErrorMessageMax), now)
	if err != nil {
		return 0, fmt.Errorf("mark stale jobs failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// GetRunningJobsCount counts running jobs across all processes.
func (r *JobRepo) GetRunningJobsCount(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM background_jobs WHERE status = 'running'`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count running jobs: %w", err)
	}
	return n, nil
}

// CountBySession returns running and waiting counts for one session.
func (r *JobRepo) CountBySession(ctx context.Context, sessionID string) (model.JobCounts, error) {
	var c model.JobCounts
	if err := r.DB.QueryRowContext(ctx, `
		SELECT
		  count(*) FILTER (WHERE status = 'running'),
		  count(*) FILTER (WHERE status IN ('pending', 'queued', 'pending_retry'))
		FROM background_jobs
		WHERE session_id = $1
	`, sessionID).Scan(&c.Running, &c.Pending); err != nil {
		return model.JobCounts{}, fmt.Errorf("count session jobs: %w", err)
	}
	return c, nil
}

// Stats counts jobs per status across all sessions.
func (r *JobRepo) Stats(ctx context.Context) (model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, count(*) FROM background_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := model.JobStats{}
	for rows.Next() {
		var (
			status model.JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job stats: %w", err)
	}
	return stats, nil
}
