package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/data"
	"github.com/target/mmk-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-jobs/internal/errors"
	"github.com/target/mmk-jobs/internal/mocks"
	"github.com/target/mmk-jobs/internal/testutil"
)

func newTestJobService(t *testing.T, h *harness, cache core.ProgressCache) *JobService {
	t.Helper()
	svc, err := NewJobService(JobServiceOptions{
		Store:        h.store,
		Orchestrator: h.orch,
		Recovery:     newTestRecovery(t, h),
		Cache:        cache,
	})
	require.NoError(t, err)
	return svc
}

func TestNewJobService_Validation(t *testing.T) {
	h := newHarness(t, 1, newGate().Work)
	rc := newTestRecovery(t, h)

	tests := []struct {
		name string
		opts JobServiceOptions
	}{
		{name: "missing store", opts: JobServiceOptions{Orchestrator: h.orch, Recovery: rc}},
		{name: "missing orchestrator", opts: JobServiceOptions{Store: h.store, Recovery: rc}},
		{name: "missing recovery", opts: JobServiceOptions{Store: h.store, Orchestrator: h.orch}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJobService(tt.opts)
			require.Error(t, err)
		})
	}
}

func TestJobService_Create(t *testing.T) {
	g := newGate()
	h := newHarness(t, 1, g.Work)
	svc := newTestJobService(t, h, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, testutil.NewJobRequest().WithName("first").Build())
	require.NoError(t, err)
	assert.Equal(t, StartStarted, first.Start)
	assert.Equal(t, MsgJobCreated, first.Message)
	assert.NotEmpty(t, first.Job.ID)

	second, err := svc.Create(ctx, testutil.NewJobRequest().WithName("second").Build())
	require.NoError(t, err)
	assert.Equal(t, StartQueued, second.Start)
	assert.Equal(t, MsgJobQueued, second.Message)
	assert.Equal(t, model.JobStatusQueued, second.Job.Status)

	g.Release(first.Job.ID)
	g.WaitEntered(t, second.Job.ID)
	g.Release(second.Job.ID)
	h.waitStatus(t, second.Job.ID, model.JobStatusCompleted)
	h.waitIdle(t)
}

func TestJobService_CreateRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t, 1, newGate().Work)
	svc := newTestJobService(t, h, nil)

	tests := []struct {
		name string
		req  *model.CreateJobRequest
		want string
	}{
		{name: "missing session", req: testutil.NewJobRequest().WithSessionID(" ").Build(), want: "session id is required"},
		{name: "unknown type", req: testutil.NewJobRequest().WithType("weekly").Build(), want: "invalid job type"},
		{name: "bad window", req: testutil.NewJobRequest().WithWindow("2024-02-01", "2024-01-01").Build(), want: "date_to must not be before date_from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
	assert.Zero(t, h.store.Mutations())
}

func TestJobService_List(t *testing.T) {
	g := newGate()
	h := newHarness(t, 2, g.Work)
	svc := newTestJobService(t, h, nil)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		res, err := svc.Create(ctx, testutil.NewJobRequest().WithName(name).Build())
		require.NoError(t, err)
		ids = append(ids, res.Job.ID)
	}
	other, err := svc.Create(ctx, testutil.NewJobRequest().WithSessionID("other").Build())
	require.NoError(t, err)
	ids = append(ids, other.Job.ID)

	list, err := svc.List(ctx, model.JobListOptions{SessionID: "session-test"})
	require.NoError(t, err)
	require.Len(t, list.Jobs, 3)
	assert.Equal(t, ids[2], list.Jobs[0].ID, "newest first")
	assert.Equal(t, ids[0], list.Jobs[2].ID)
	assert.Equal(t, 2, list.RunningCount)
	assert.Equal(t, 1, list.PendingCount)
	assert.Equal(t, 2, list.MaxConcurrent)

	_, err = svc.List(ctx, model.JobListOptions{})
	require.Error(t, err)

	for _, id := range ids {
		g.Release(id)
	}
	for _, id := range ids {
		h.waitStatus(t, id, model.JobStatusCompleted)
	}
	h.waitIdle(t)
}

func TestNormalizePagination(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, defaultListLimit, 0},
		{500, -3, maxListLimit, 0},
		{10, 20, 10, 20},
	}
	for _, tt := range tests {
		l, o := normalizePagination(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, l)
		assert.Equal(t, tt.wantOffset, o)
	}
}

func TestJobService_GetEnforcesSession(t *testing.T) {
	h := newHarness(t, 1, newGate().Work)
	svc := newTestJobService(t, h, nil)
	j := seedJob(t, h, "owned", model.JobStatusFailed)

	_, err := svc.Get(context.Background(), j.ID, "someone-else")
	require.ErrorIs(t, err, data.ErrJobNotFound)

	got, err := svc.Get(context.Background(), j.ID, "session-test")
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
}

func TestJobService_DeleteRunningJobCancelsIt(t *testing.T) {
	g := newGate()
	h := newHarness(t, 1, g.Work)
	svc := newTestJobService(t, h, nil)
	ctx := context.Background()

	res, err := svc.Create(ctx, testutil.SpotlistJobRequest())
	require.NoError(t, err)
	g.WaitEntered(t, res.Job.ID)

	del, err := svc.Delete(ctx, res.Job.ID, "session-test")
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{Deleted: true, WasRunning: true}, del)

	got := h.waitStatus(t, res.Job.ID, model.JobStatusFailed)
	assert.Equal(t, MsgCancelledByUser, errorMessage(got))
	h.waitIdle(t)
	assert.NotContains(t, svc.Status().RunningJobIDs, res.Job.ID)
}

func TestJobService_DeleteRemovesRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockProgressCache(ctrl)
	h := newHarness(t, 1, newGate().Work)
	svc := newTestJobService(t, h, cache)
	j := seedJob(t, h, "finished", model.JobStatusCompleted)

	cache.EXPECT().Forget(gomock.Any(), j.ID).Return(nil)

	del, err := svc.Delete(context.Background(), j.ID, "session-test")
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{Deleted: true}, del)
	assert.Nil(t, h.store.Snapshot(j.ID))

	_, err = svc.Delete(context.Background(), j.ID, "session-test")
	require.ErrorIs(t, err, data.ErrJobNotFound)
}

func TestJobService_DeleteOtherSession(t *testing.T) {
	h := newHarness(t, 1, newGate().Work)
	svc := newTestJobService(t, h, nil)
	j := seedJob(t, h, "owned", model.JobStatusCompleted)

	_, err := svc.Delete(context.Background(), j.ID, "intruder")
	require.ErrorIs(t, err, data.ErrJobNotFound)
	assert.NotNil(t, h.store.Snapshot(j.ID))
}

func TestJobService_Retry(t *testing.T) {
	g := newGate()
	h := newHarness(t, 1, g.Work)
	svc := newTestJobService(t, h, nil)
	ctx := context.Background()

	t.Run("rejects jobs that have not failed", func(t *testing.T) {
		for _, status := range []model.JobStatus{model.JobStatusCompleted, model.JobStatusRunning, model.JobStatusPendingRetry} {
			j := seedJob(t, h, string(status), status)
			_, err := svc.Retry(ctx, j.ID, "session-test")
			require.ErrorIs(t, err, ErrJobNotRetryable, status)
		}
	})

	t.Run("resets and restarts a failed job", func(t *testing.T) {
		msg := "upstream timeout"
		now := time.Now()
		j := seedJob(t, h, "failed", model.JobStatusFailed)
		_, err := h.store.UpdateStatus(ctx, j.ID, model.StatusUpdate{
			Status:       model.JobStatusFailed,
			ErrorMessage: &msg,
			CompletedAt:  &now,
		})
		require.NoError(t, err)
		_, err = h.store.IncrementRetry(ctx, j.ID)
		require.NoError(t, err)

		res, err := svc.Retry(ctx, j.ID, "session-test")
		require.NoError(t, err)
		assert.Equal(t, StartStarted, res.Start)
		assert.Equal(t, MsgRetryStarted, res.Message)

		g.WaitEntered(t, j.ID)
		running := h.store.Snapshot(j.ID)
		assert.Equal(t, model.JobStatusRunning, running.Status)
		assert.Nil(t, running.ErrorMessage)
		assert.Nil(t, running.CompletedAt)
		assert.Zero(t, running.RetryCount)

		g.Release(j.ID)
		h.waitStatus(t, j.ID, model.JobStatusCompleted)
		h.waitIdle(t)
	})
}

func TestJobService_Progress(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockProgressCache(ctrl)
	h := newHarness(t, 1, newGate().Work)
	svc := newTestJobService(t, h, cache)
	ctx := context.Background()

	t.Run("prefers the cache for active jobs", func(t *testing.T) {
		j := seedJob(t, h, "active", model.JobStatusRunning)
		snap := &model.ProgressSnapshot{JobID: j.ID, Status: model.JobStatusRunning, Progress: 42, Message: "Processing ZDF (3/8)..."}
		cache.EXPECT().GetProgress(gomock.Any(), j.ID).Return(snap, nil)

		got, err := svc.Progress(ctx, j.ID, "session-test")
		require.NoError(t, err)
		assert.Equal(t, snap, got)
	})

	t.Run("falls back to the store on cache miss or error", func(t *testing.T) {
		j := seedJob(t, h, "active", model.JobStatusRunning)
		cache.EXPECT().GetProgress(gomock.Any(), j.ID).Return(nil, nil)
		cache.EXPECT().GetProgress(gomock.Any(), j.ID).Return(nil, errors.New("redis down"))

		for range 2 {
			got, err := svc.Progress(ctx, j.ID, "session-test")
			require.NoError(t, err)
			assert.Equal(t, j.ID, got.JobID)
			assert.Equal(t, model.JobStatusRunning, got.Status)
		}
	})

	t.Run("terminal jobs are served from the store", func(t *testing.T) {
		j := seedJob(t, h, "done", model.JobStatusCompleted)
		got, err := svc.Progress(ctx, j.ID, "session-test")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
	})
}

func TestJobService_QueryResult(t *testing.T) {
	h := newHarness(t, 1, newGate().Work)
	svc := newTestJobService(t, h, nil)
	ctx := context.Background()

	done := seedJob(t, h, "done", model.JobStatusCompleted)
	ok, err := h.store.Complete(ctx, done.ID, model.WorkResult{Rows: []model.Row{
		{"Company": "Acme", "Channel": "ZDF"},
		{"Company": "Globex", "Channel": "ARD"},
		{"Company": "Acme", "Channel": "ARD"},
	}})
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("returns all rows without a query", func(t *testing.T) {
		out, err := svc.QueryResult(ctx, done.ID, "session-test", "")
		require.NoError(t, err)
		assert.Len(t, out, 3)
	})

	t.Run("projects rows", func(t *testing.T) {
		out, err := svc.QueryResult(ctx, done.ID, "session-test", "[?Channel=='ARD'].Company")
		require.NoError(t, err)
		b, err := json.Marshal(out)
		require.NoError(t, err)
		assert.JSONEq(t, `["Globex","Acme"]`, string(b))
	})

	t.Run("rejects malformed queries", func(t *testing.T) {
		_, err := svc.QueryResult(ctx, done.ID, "session-test", "[?Channel==")
		require.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("requires a completed job", func(t *testing.T) {
		running := seedJob(t, h, "running", model.JobStatusRunning)
		_, err := svc.QueryResult(ctx, running.ID, "session-test", "")
		require.ErrorIs(t, err, ErrJobNotCompleted)
	})

	t.Run("reports dropped payloads", func(t *testing.T) {
		big := seedJob(t, h, "big", model.JobStatusCompleted)
		h.store.MaxResultBytes = 16
		defer func() { h.store.MaxResultBytes = 0 }()
		_, err := h.store.Complete(ctx, big.ID, model.WorkResult{Rows: []model.Row{{"Company": "A very long company name"}}})
		require.NoError(t, err)

		_, err = svc.QueryResult(ctx, big.ID, "session-test", "")
		require.ErrorIs(t, err, ErrResultUnavailable)
	})
}
