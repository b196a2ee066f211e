package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/mocks"
)

func TestJobService_HealthHealthy(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockProgressCache(ctrl)
	cache.EXPECT().Health(gomock.Any()).Return(nil)

	h := newHarness(t, 3, newGate().Work)
	svc := newTestJobService(t, h, cache)

	report := svc.Health(context.Background())
	assert.Equal(t, HealthHealthy, report.Status)
	assert.Empty(t, report.Issues)
	assert.True(t, report.Components["database"].Healthy)
	assert.True(t, report.Components["database"].Critical)
	assert.True(t, report.Components["cache"].Healthy)

	queue := report.Components["job_queue"]
	assert.Equal(t, 0, queue.Details["orphaned_jobs"])
	assert.Equal(t, 3, queue.Details["max_concurrent"])
	assert.Equal(t, true, queue.Details["can_start_new"])
	assert.Nil(t, report.RecoveryResult)
}

func TestJobService_HealthTriggersRecoveryOnce(t *testing.T) {
	h := newHarness(t, 3, newGate().Work)
	svc := newTestJobService(t, h, nil)
	orphan := seedJob(t, h, "orphan", model.JobStatusRunning)

	report := svc.Health(context.Background())
	assert.Equal(t, HealthDegraded, report.Status)
	assert.Contains(t, report.Issues, "Found 1 orphaned jobs")
	require.Len(t, report.RecoveryActions, 1)
	res, ok := report.RecoveryResult.(RecoveryResult)
	require.True(t, ok)
	assert.Equal(t, int64(1), res.StaleJobsMarkedFailed)
	assert.Equal(t, model.JobStatusFailed, h.store.Snapshot(orphan.ID).Status)

	// A new orphan after recovery is reported but not recovered automatically.
	seedJob(t, h, "late orphan", model.JobStatusRunning)
	report = svc.Health(context.Background())
	assert.Equal(t, HealthDegraded, report.Status)
	assert.Empty(t, report.RecoveryActions)
	assert.Equal(t, map[string]any{"triggered": false, "reason": "Already recovered"}, report.RecoveryResult)
}

func TestJobService_HealthCacheDownIsDegraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockProgressCache(ctrl)
	cache.EXPECT().Health(gomock.Any()).Return(errors.New("dial tcp: connection refused"))

	h := newHarness(t, 3, newGate().Work)
	svc := newTestJobService(t, h, cache)

	report := svc.Health(context.Background())
	assert.Equal(t, HealthDegraded, report.Status)
	assert.False(t, report.Components["cache"].Healthy)
	assert.False(t, report.Components["cache"].Critical)
	assert.Contains(t, report.Components["cache"].Error, "connection refused")
}

func TestJobService_HealthDatabaseDownIsUnhealthy(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)
	store.EXPECT().GetRunningJobsCount(gomock.Any()).Return(0, errors.New("connection refused"))
	store.EXPECT().GetStaleRunningJobs(gomock.Any()).Return(nil, errors.New("connection refused"))

	orch, err := NewOrchestrator(OrchestratorOptions{
		Store:    store,
		Manager:  NewJobManager(3),
		Registry: core.WorkRegistry{model.JobTypeSpotlist: newGate().Work},
	})
	require.NoError(t, err)
	rc, err := NewRecoveryCoordinator(RecoveryCoordinatorOptions{Orchestrator: orch})
	require.NoError(t, err)
	svc, err := NewJobService(JobServiceOptions{Store: store, Orchestrator: orch, Recovery: rc})
	require.NoError(t, err)

	report := svc.Health(context.Background())
	assert.Equal(t, HealthUnhealthy, report.Status)
	assert.Contains(t, report.Issues, "Database connection failed")
	assert.False(t, report.Components["job_queue"].Healthy)
}
