package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/data/pgxutil"
)

// reaperLockKey namespaces the transaction-scoped advisory lock that keeps
// concurrent reapers from deleting the same batch.
const reaperLockKey = "mmk-jobs.reaper"

// Oldest rows go first so a capped batch always removes the most expired jobs.
const deleteExpiredJobsSQL = `
DELETE FROM background_jobs
WHERE id IN (
	SELECT id FROM background_jobs
	WHERE status = $1 AND COALESCE(completed_at, updated_at) < $2
	ORDER BY COALESCE(completed_at, updated_at)
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)`

// DeleteOldJobs removes at most params.BatchSize jobs in a terminal status
// whose completion is older than params.MaxAge. It deletes nothing and
// returns 0 while another reaper holds the lock.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	switch {
	case !params.Status.IsTerminal():
		return 0, fmt.Errorf("refusing to reap non-terminal status %q", params.Status)
	case params.BatchSize <= 0:
		return 0, errors.New("batch size must be positive")
	case params.MaxAge <= 0:
		return 0, errors.New("max age must be positive")
	}

	cutoff := r.now().UTC().Add(-params.MaxAge)
	var deleted int64
	err := pgxutil.WithSQLTx(ctx, r.DB, nil, func(tx *sql.Tx) error {
		var acquired bool
		err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, reaperLockKey).Scan(&acquired)
		if err != nil {
			return fmt.Errorf("reaper lock: %w", err)
		}
		if !acquired {
			r.logger.DebugContext(ctx, "reaper lock held elsewhere, skipping batch", "status", params.Status)
			return nil
		}

		res, err := tx.ExecContext(ctx, deleteExpiredJobsSQL, params.Status, cutoff, params.BatchSize)
		if err != nil {
			return fmt.Errorf("delete %s jobs before %s: %w", params.Status, cutoff.Format("2006-01-02T15:04:05Z"), err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
