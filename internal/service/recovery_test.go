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
	"github.com/target/mmk-jobs/internal/testutil"
)

func seedJob(t *testing.T, h *harness, name string, status model.JobStatus) *model.Job {
	t.Helper()
	req := testutil.NewJobRequest().WithName(name).Build()
	return h.store.Seed(model.Job{
		SessionID:  req.SessionID,
		Name:       req.Name,
		Type:       req.Type,
		Status:     status,
		Parameters: req.Parameters,
	})
}

func newTestRecovery(t *testing.T, h *harness) *RecoveryCoordinator {
	t.Helper()
	rc, err := NewRecoveryCoordinator(RecoveryCoordinatorOptions{Orchestrator: h.orch, Metrics: h.metrics})
	require.NoError(t, err)
	return rc
}

func TestRecoveryCoordinator_FailsOrphansAndStartsWaitingJobs(t *testing.T) {
	g := newGate()
	h := newHarness(t, 3, g.Work)
	orphanA := seedJob(t, h, "orphan a", model.JobStatusRunning)
	orphanB := seedJob(t, h, "orphan b", model.JobStatusRunning)
	p1 := seedJob(t, h, "p1", model.JobStatusPending)
	p2 := seedJob(t, h, "p2", model.JobStatusQueued)
	p3 := seedJob(t, h, "p3", model.JobStatusPending)
	p4 := seedJob(t, h, "p4", model.JobStatusPending)
	done := seedJob(t, h, "done", model.JobStatusCompleted)

	rc := newTestRecovery(t, h)
	res := rc.Recover(context.Background())

	assert.False(t, res.AlreadyRecovered)
	assert.Equal(t, 2, res.StaleJobsFound)
	assert.Equal(t, int64(2), res.StaleJobsMarkedFailed)
	assert.Equal(t, 3, res.QueuedJobsStarted)
	assert.Empty(t, res.Errors)
	assert.True(t, rc.Recovered())

	for _, j := range []*model.Job{orphanA, orphanB} {
		got := h.store.Snapshot(j.ID)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		assert.Contains(t, errorMessage(got), "interrupted by server restart")
	}
	assert.ElementsMatch(t, []string{p1.ID, p2.ID, p3.ID}, h.manager.RunningIDs())
	assert.Equal(t, model.JobStatusPending, h.store.Snapshot(p4.ID).Status)
	assert.Equal(t, model.JobStatusCompleted, h.store.Snapshot(done.ID).Status)

	runs := h.metrics.Find("recovery.run")
	require.Len(t, runs, 1)
	assert.Equal(t, "success", runs[0].Tags["result"])
}

func TestRecoveryCoordinator_IsIdempotent(t *testing.T) {
	g := newGate()
	h := newHarness(t, 3, g.Work)
	seedJob(t, h, "orphan", model.JobStatusRunning)

	rc := newTestRecovery(t, h)
	first := rc.Recover(context.Background())
	require.Equal(t, int64(1), first.StaleJobsMarkedFailed)

	// A row left running after the first pass must not be touched by the second.
	late := seedJob(t, h, "late orphan", model.JobStatusRunning)
	before := h.store.Mutations()

	second := rc.Recover(context.Background())
	assert.True(t, second.AlreadyRecovered)
	assert.Zero(t, second.StaleJobsFound)
	assert.Equal(t, before, h.store.Mutations())
	assert.Equal(t, model.JobStatusRunning, h.store.Snapshot(late.ID).Status)

	runs := h.metrics.Find("recovery.run")
	require.Len(t, runs, 2)
	assert.Equal(t, "noop", runs[1].Tags["result"])
}

func TestRecoveryCoordinator_SkipsJobsRunningInThisProcess(t *testing.T) {
	g := newGate()
	h := newHarness(t, 3, g.Work)
	live := h.createJob(t, "live")
	h.start(t, live)
	g.WaitEntered(t, live.ID)
	orphan := seedJob(t, h, "orphan", model.JobStatusRunning)

	res := newTestRecovery(t, h).Recover(context.Background())

	assert.Equal(t, 1, res.StaleJobsFound)
	assert.Equal(t, model.JobStatusRunning, h.store.Snapshot(live.ID).Status)
	assert.Equal(t, model.JobStatusFailed, h.store.Snapshot(orphan.ID).Status)
	assert.True(t, h.manager.IsRunning(live.ID))

	g.Release(live.ID)
	h.waitStatus(t, live.ID, model.JobStatusCompleted)
}

func TestRecoveryCoordinator_ForceRunsAgain(t *testing.T) {
	g := newGate()
	h := newHarness(t, 3, g.Work)
	rc := newTestRecovery(t, h)

	rc.Recover(context.Background())
	orphan := seedJob(t, h, "orphan", model.JobStatusRunning)

	res := rc.Force(context.Background())
	assert.False(t, res.AlreadyRecovered)
	assert.Equal(t, int64(1), res.StaleJobsMarkedFailed)
	assert.Equal(t, model.JobStatusFailed, h.store.Snapshot(orphan.ID).Status)
	assert.True(t, rc.Recovered())
}

func TestRecoveryCoordinator_CollectsStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)

	store.EXPECT().GetStaleRunningJobs(gomock.Any()).Return(nil, errors.New("connection refused"))
	store.EXPECT().GetPendingJobs(gomock.Any(), 3).Return(nil, errors.New("connection refused"))

	orch, err := NewOrchestrator(OrchestratorOptions{
		Store:    store,
		Manager:  NewJobManager(3),
		Registry: core.WorkRegistry{model.JobTypeSpotlist: newGate().Work},
	})
	require.NoError(t, err)
	rc, err := NewRecoveryCoordinator(RecoveryCoordinatorOptions{Orchestrator: orch})
	require.NoError(t, err)

	res := rc.Recover(context.Background())
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "get stale jobs")
	assert.Contains(t, res.Errors[1], "get pending jobs")
	assert.True(t, rc.Recovered())
}

func TestRecoveryCoordinator_MarksStaleInOneCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)

	stale := []*model.Job{{ID: "a", Status: model.JobStatusRunning}, {ID: "b", Status: model.JobStatusRunning}}
	gomock.InOrder(
		store.EXPECT().GetStaleRunningJobs(gomock.Any()).Return(stale, nil),
		store.EXPECT().MarkStaleJobsAsFailed(gomock.Any(), []string{"a", "b"}, MsgInterrupted).Return(int64(2), nil),
		store.EXPECT().GetPendingJobs(gomock.Any(), 3).Return([]*model.Job{}, nil),
	)

	orch, err := NewOrchestrator(OrchestratorOptions{
		Store:    store,
		Manager:  NewJobManager(3),
		Registry: core.WorkRegistry{model.JobTypeSpotlist: newGate().Work},
	})
	require.NoError(t, err)
	rc, err := NewRecoveryCoordinator(RecoveryCoordinatorOptions{Orchestrator: orch})
	require.NoError(t, err)

	res := rc.Recover(context.Background())
	assert.Equal(t, 2, res.StaleJobsFound)
	assert.Equal(t, int64(2), res.StaleJobsMarkedFailed)
	assert.Empty(t, res.Errors)
}
