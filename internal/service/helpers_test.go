package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobs/internal/core"
	domainjob "github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/observability/notify"
	"github.com/target/mmk-jobs/internal/observability/statsd"
	"github.com/target/mmk-jobs/internal/service/failurenotifier"
	"github.com/target/mmk-jobs/internal/testutil"
	"github.com/target/mmk-jobs/internal/testutil/memstore"
)

const waitTimeout = 2 * time.Second

// sleepRecorder replaces the backoff wait. With block set it waits for release or ctx.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	block  chan struct{}
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// gate blocks work functions per job until released or cancelled.
type gate struct {
	mu      sync.Mutex
	release map[string]chan struct{}
	entered map[string]chan struct{}
}

func newGate() *gate {
	return &gate{release: map[string]chan struct{}{}, entered: map[string]chan struct{}{}}
}

func (g *gate) chans(id string) (chan struct{}, chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.release[id]; !ok {
		g.release[id] = make(chan struct{})
		g.entered[id] = make(chan struct{})
	}
	return g.release[id], g.entered[id]
}

func (g *gate) Work(ctx context.Context, req core.WorkRequest) (*model.WorkResult, error) {
	release, entered := g.chans(req.JobID)
	select {
	case <-entered:
	default:
		close(entered)
	}
	select {
	case <-release:
		return &model.WorkResult{Rows: []model.Row{{"Company": "Acme"}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gate) Release(id string) {
	release, _ := g.chans(id)
	close(release)
}

func (g *gate) WaitEntered(t *testing.T, id string) {
	t.Helper()
	_, entered := g.chans(id)
	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatalf("work for job %s never started", id)
	}
}

type harness struct {
	store   *memstore.JobStore
	manager *JobManager
	orch    *Orchestrator
	sleeper *sleepRecorder
	metrics *statsd.Recorder
}

type harnessOption func(*OrchestratorOptions)

func withMaxRows(n int) harnessOption {
	return func(o *OrchestratorOptions) { o.MaxRows = n }
}

func withCache(c core.ProgressCache) harnessOption {
	return func(o *OrchestratorOptions) { o.Cache = c }
}

// failureLog records delivered failure notifications.
type failureLog struct {
	mu   sync.Mutex
	sent []notify.JobFailure
}

func (l *failureLog) Send(_ context.Context, f notify.JobFailure) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, f)
	return nil
}

func (l *failureLog) Sent() []notify.JobFailure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notify.JobFailure(nil), l.sent...)
}

func withFailureLog(l *failureLog) harnessOption {
	return func(o *OrchestratorOptions) {
		o.Notifier = failurenotifier.NewService(failurenotifier.Options{
			Sinks: []failurenotifier.SinkRegistration{{Name: "log", Sink: notify.SinkFunc(l.Send)}},
		})
	}
}

func newHarness(t *testing.T, maxConcurrent int, work core.WorkFunc, opts ...harnessOption) *harness {
	t.Helper()
	policy, err := domainjob.NewRetryPolicy(3, 2*time.Second)
	require.NoError(t, err)

	h := &harness{
		store:   memstore.New(),
		manager: NewJobManager(maxConcurrent),
		sleeper: &sleepRecorder{},
		metrics: &statsd.Recorder{},
	}
	o := OrchestratorOptions{
		Store:    h.store,
		Manager:  h.manager,
		Registry: core.WorkRegistry{model.JobTypeSpotlist: work, model.JobTypeTopTen: work},
		Metrics:  h.metrics,
		Policy:   policy,
		Sleep:    h.sleeper.Sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}
	h.orch, err = NewOrchestrator(o)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = h.orch.Shutdown(ctx)
	})
	return h
}

func (h *harness) createJob(t *testing.T, name string) *model.Job {
	t.Helper()
	j, err := h.store.Create(context.Background(), testutil.NewJobRequest().WithName(name).Build())
	require.NoError(t, err)
	return j
}

func (h *harness) start(t *testing.T, j *model.Job) StartOutcome {
	t.Helper()
	outcome, err := h.orch.StartJob(context.Background(), j)
	require.NoError(t, err)
	return outcome
}

func (h *harness) waitStatus(t *testing.T, id string, status model.JobStatus) *model.Job {
	t.Helper()
	var last *model.Job
	require.Eventually(t, func() bool {
		last = h.store.Snapshot(id)
		return last != nil && last.Status == status
	}, waitTimeout, 5*time.Millisecond, "job %s never reached %s", id, status)
	return last
}

// waitIdle waits until no job is registered and every executor returned.
func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.manager.RunningCount() == 0 }, waitTimeout, 5*time.Millisecond)
	h.orch.Wait()
}

func errorMessage(j *model.Job) string {
	if j == nil || j.ErrorMessage == nil {
		return ""
	}
	return *j.ErrorMessage
}

var errUpstreamTimeout = errors.New("upstream timeout")
