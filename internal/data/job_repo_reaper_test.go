package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/testutil"
)

const week = 7 * 24 * time.Hour

// finishJob drives a new job to status and backdates it by age.
func finishJob(t *testing.T, db *sql.DB, repo *JobRepo, status model.JobStatus, age time.Duration) string {
	t.Helper()
	ctx := context.Background()
	j := createTestJob(t, repo, testutil.SpotlistJobRequest())

	switch status {
	case model.JobStatusCompleted:
		ok, err := repo.Complete(ctx, j.ID, model.WorkResult{})
		require.NoError(t, err)
		require.True(t, ok)
	case model.JobStatusFailed:
		_, err := repo.UpdateStatus(ctx, j.ID, model.StatusUpdate{
			Status:       model.JobStatusFailed,
			ErrorMessage: testutil.StringPtr("upstream unavailable"),
		})
		require.NoError(t, err)
	}

	if age > 0 {
		_, err := db.ExecContext(ctx,
			`UPDATE background_jobs SET completed_at = $1, updated_at = $1 WHERE id = $2`,
			time.Now().Add(-age), j.ID)
		require.NoError(t, err)
	}
	return j.ID
}

func TestJobRepo_DeleteOldJobs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	tests := []struct {
		name        string
		jobStatus   model.JobStatus
		age         time.Duration
		reapStatus  model.JobStatus
		wantDeleted int64
	}{
		{name: "expired completed", jobStatus: model.JobStatusCompleted, age: week + 24*time.Hour, reapStatus: model.JobStatusCompleted, wantDeleted: 1},
		{name: "expired failed", jobStatus: model.JobStatusFailed, age: week + 24*time.Hour, reapStatus: model.JobStatusFailed, wantDeleted: 1},
		{name: "recent completed kept", jobStatus: model.JobStatusCompleted, reapStatus: model.JobStatusCompleted},
		{name: "other status kept", jobStatus: model.JobStatusCompleted, age: week + 24*time.Hour, reapStatus: model.JobStatusFailed},
		{name: "queued never matches", jobStatus: model.JobStatusPending, age: 30 * 24 * time.Hour, reapStatus: model.JobStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.WithAutoDB(t, func(db *sql.DB) {
				repo := NewJobRepo(db, RepoConfig{})
				ctx := context.Background()
				id := finishJob(t, db, repo, tt.jobStatus, tt.age)

				n, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
					Status:    tt.reapStatus,
					MaxAge:    week,
					BatchSize: 1000,
				})
				require.NoError(t, err)
				assert.Equal(t, tt.wantDeleted, n)

				_, err = repo.Get(ctx, id, "")
				if tt.wantDeleted > 0 {
					require.ErrorIs(t, err, ErrJobNotFound)
				} else {
					require.NoError(t, err)
				}
			})
		})
	}
}

func TestJobRepo_DeleteOldJobs_Batching(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		for range 3 {
			finishJob(t, db, repo, model.JobStatusCompleted, 48*time.Hour)
		}
		params := core.DeleteOldJobsParams{Status: model.JobStatusCompleted, MaxAge: 24 * time.Hour, BatchSize: 2}

		var batches []int64
		for {
			n, err := repo.DeleteOldJobs(context.Background(), params)
			require.NoError(t, err)
			batches = append(batches, n)
			if n == 0 {
				break
			}
		}
		assert.Equal(t, []int64{2, 1, 0}, batches)
	})
}

func TestJobRepo_DeleteOldJobs_RejectsBadParams(t *testing.T) {
	repo := NewJobRepo(nil, RepoConfig{})
	tests := []struct {
		name   string
		params core.DeleteOldJobsParams
		want   string
	}{
		{name: "running", params: core.DeleteOldJobsParams{Status: model.JobStatusRunning, MaxAge: time.Hour, BatchSize: 10}, want: "non-terminal"},
		{name: "zero batch", params: core.DeleteOldJobsParams{Status: model.JobStatusFailed, MaxAge: time.Hour}, want: "batch size"},
		{name: "zero age", params: core.DeleteOldJobsParams{Status: model.JobStatusFailed, BatchSize: 10}, want: "max age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.DeleteOldJobs(context.Background(), tt.params)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
