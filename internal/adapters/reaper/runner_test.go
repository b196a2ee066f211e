package reaper

import (
	"context"
	"errors"
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

// batchRepo hands out the queued batch sizes per status, then zero.
type batchRepo struct {
	mu      sync.Mutex
	batches map[model.JobStatus][]int64
	err     error
	calls   []core.DeleteOldJobsParams
}

func (r *batchRepo) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, params)
	if r.err != nil {
		return 0, r.err
	}
	queue := r.batches[params.Status]
	if len(queue) == 0 {
		return 0, nil
	}
	r.batches[params.Status] = queue[1:]
	return queue[0], nil
}

func retention() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        time.Minute,
		CompletedMaxAge: 24 * time.Hour,
		FailedMaxAge:    48 * time.Hour,
		BatchSize:       10,
	}
}

func TestNewRunner_RequiresDBOrRepo(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}

func TestRunner_RunOnceSummarizesDeletions(t *testing.T) {
	repo := &batchRepo{batches: map[model.JobStatus][]int64{
		model.JobStatusCompleted: {10, 4},
		model.JobStatusFailed:    {2},
	}}
	rec := &statsd.Recorder{}
	r, err := NewRunner(RunnerOptions{Repo: repo, Metrics: rec, Config: retention()})
	require.NoError(t, err)

	sum, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Completed: 14, Failed: 2}, sum)
	assert.Equal(t, int64(16), sum.Total())

	require.NotEmpty(t, repo.calls)
	assert.Equal(t, core.DeleteOldJobsParams{Status: model.JobStatusCompleted, MaxAge: 24 * time.Hour, BatchSize: 10}, repo.calls[0])
	assert.Equal(t, model.JobStatusFailed, repo.calls[len(repo.calls)-1].Status)
	assert.Equal(t, 48*time.Hour, repo.calls[len(repo.calls)-1].MaxAge)
	assert.NotEmpty(t, rec.Find("reaper.cleanup"))

	// A second pass starts from zero.
	sum, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Total())
}

func TestRunner_RunOnceError(t *testing.T) {
	repo := &batchRepo{err: errors.New("connection reset")}
	r, err := NewRunner(RunnerOptions{Repo: repo, Config: retention()})
	require.NoError(t, err)

	sum, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Zero(t, sum.Total())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	r, err := NewRunner(RunnerOptions{Repo: &batchRepo{}, Config: retention()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
