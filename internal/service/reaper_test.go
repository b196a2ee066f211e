package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/observability/statsd"
)

// mockReaperRepo returns count for the first batch of each status and 0 afterwards.
type mockReaperRepo struct {
	mu     sync.Mutex
	counts map[model.JobStatus]int64
	errs   map[model.JobStatus]error
	calls  map[model.JobStatus]int
	params []core.DeleteOldJobsParams
}

func newMockReaperRepo() *mockReaperRepo {
	return &mockReaperRepo{
		counts: map[model.JobStatus]int64{},
		errs:   map[model.JobStatus]error{},
		calls:  map[model.JobStatus]int{},
	}
}

func (m *mockReaperRepo) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[params.Status]++
	m.params = append(m.params, params)
	if err := m.errs[params.Status]; err != nil {
		return 0, err
	}
	if m.calls[params.Status] == 1 {
		return m.counts[params.Status], nil
	}
	return 0, nil
}

func (m *mockReaperRepo) callsFor(status model.JobStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[status]
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        5 * time.Minute,
		CompletedMaxAge: 7 * 24 * time.Hour,
		FailedMaxAge:    3 * 24 * time.Hour,
		BatchSize:       1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   newMockReaperRepo(),
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repository is required")
	})
}

func TestReaperService_RunOnce(t *testing.T) {
	t.Run("deletes completed and failed jobs with their own max age", func(t *testing.T) {
		repo := newMockReaperRepo()
		repo.counts[model.JobStatusCompleted] = 10
		repo.counts[model.JobStatusFailed] = 4
		rec := &statsd.Recorder{}

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Metrics: rec})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(context.Background()))

		// One batch with rows, one empty batch per status.
		assert.Equal(t, 2, repo.callsFor(model.JobStatusCompleted))
		assert.Equal(t, 2, repo.callsFor(model.JobStatusFailed))
		for _, p := range repo.params {
			assert.Equal(t, 1000, p.BatchSize)
			switch p.Status {
			case model.JobStatusCompleted:
				assert.Equal(t, 7*24*time.Hour, p.MaxAge)
			case model.JobStatusFailed:
				assert.Equal(t, 3*24*time.Hour, p.MaxAge)
			default:
				t.Fatalf("unexpected status %s", p.Status)
			}
		}

		processed := rec.Find("reaper.jobs_processed")
		require.Len(t, processed, 2)
		assert.InDelta(t, 10, processed[0].Value, 0)
		assert.InDelta(t, 4, processed[1].Value, 0)
		assert.Len(t, rec.Find("reaper.last_success_epoch"), 1)
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := newMockReaperRepo()
		repo.errs[model.JobStatusCompleted] = errors.New("boom")
		repo.counts[model.JobStatusFailed] = 2
		rec := &statsd.Recorder{}

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Metrics: rec})
		require.NoError(t, err)

		err = svc.RunOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "delete_completed")
		assert.Equal(t, 1, repo.callsFor(model.JobStatusCompleted))
		assert.Equal(t, 2, repo.callsFor(model.JobStatusFailed))

		runs := rec.Find("reaper.cleanup")
		require.Len(t, runs, 1)
		assert.Equal(t, "error", runs[0].Tags["result"])
		assert.Empty(t, rec.Find("reaper.last_success_epoch"))
	})

	t.Run("reports noop when nothing is deleted", func(t *testing.T) {
		rec := &statsd.Recorder{}
		svc, err := NewReaperService(ReaperServiceOptions{Repo: newMockReaperRepo(), Config: testReaperConfig(), Metrics: rec})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(context.Background()))
		runs := rec.Find("reaper.cleanup")
		require.Len(t, runs, 1)
		assert.Equal(t, "noop", runs[0].Tags["result"])
	})

	t.Run("returns context.Canceled when every step was cancelled", func(t *testing.T) {
		repo := newMockReaperRepo()
		repo.errs[model.JobStatusCompleted] = context.Canceled
		repo.errs[model.JobStatusFailed] = context.Canceled

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig()})
		require.NoError(t, err)

		err = svc.RunOnce(context.Background())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := newMockReaperRepo()
		cfg := testReaperConfig()
		cfg.Interval = 100 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		time.Sleep(150 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}
		assert.GreaterOrEqual(t, repo.callsFor(model.JobStatusCompleted), 1)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := newMockReaperRepo()
		repo.errs[model.JobStatusFailed] = errors.New("test error")
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err = svc.Run(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, repo.callsFor(model.JobStatusFailed), 2)
	})
}
