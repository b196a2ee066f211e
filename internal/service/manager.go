package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

// Cancellation causes recorded on a job's context.
var (
	// ErrCancelledByUser marks a cancellation requested through the API.
	ErrCancelledByUser = errors.New("cancelled by user")
	// ErrShutdown marks a cancellation caused by the process stopping.
	ErrShutdown = errors.New("server shutting down")
)

// DefaultMaxConcurrentJobs bounds how many jobs execute at once in one process.
const DefaultMaxConcurrentJobs = 3

// ManagerStatus is a point-in-time view of the in-process registry.
type ManagerStatus struct {
	RunningCount  int      `json:"running_count"`
	MaxConcurrent int      `json:"max_concurrent"`
	CanStart      bool     `json:"can_start"`
	RunningJobIDs []string `json:"running_job_ids"`
	Recovered     bool     `json:"recovered"`
}

// JobManager tracks the jobs executing in this process and enforces the concurrency cap.
// A job is registered from the moment its executor is launched until its deferred cleanup
// runs, including any backoff sleeps between attempts.
type JobManager struct {
	mu            sync.Mutex
	running       map[string]*slot
	maxConcurrent int
	recovered     atomic.Bool
}

// NewJobManager creates a registry allowing maxConcurrent jobs; values below 1 use the default.
func NewJobManager(maxConcurrent int) *JobManager {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	return &JobManager{
		running:       make(map[string]*slot),
		maxConcurrent: maxConcurrent,
	}
}

// MaxConcurrent returns the configured cap.
func (m *JobManager) MaxConcurrent() int { return m.maxConcurrent }

// CanStart reports whether a slot is free. The answer can be stale by the time the caller
// acts on it; Register re-checks.
func (m *JobManager) CanStart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running) < m.maxConcurrent
}

// slot is one registration. Executors release their own slot so a late cleanup never frees
// a newer registration of the same id.
type slot struct {
	cancel context.CancelCauseFunc
}

// Register claims a slot for id. It returns false, without inserting, when the cap is reached
// or id is already registered.
func (m *JobManager) Register(id string, cancel context.CancelCauseFunc) bool {
	_, ok := m.register(id, cancel)
	return ok
}

func (m *JobManager) register(id string, cancel context.CancelCauseFunc) (*slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.running[id]; ok {
		return nil, false
	}
	if len(m.running) >= m.maxConcurrent {
		return nil, false
	}
	s := &slot{cancel: cancel}
	m.running[id] = s
	return s, true
}

// Unregister releases id's slot. Unknown ids are ignored.
func (m *JobManager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, id)
}

// release drops id only while it still maps to s.
func (m *JobManager) release(id string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[id] == s {
		delete(m.running, id)
	}
}

// IsRunning reports whether id holds a slot.
func (m *JobManager) IsRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// Cancel cancels id's context with cause and releases its slot immediately.
// It returns false when id is not registered.
func (m *JobManager) Cancel(id string, cause error) bool {
	m.mu.Lock()
	s, ok := m.running[id]
	if ok {
		delete(m.running, id)
	}
	m.mu.Unlock()

	if ok && s.cancel != nil {
		s.cancel(cause)
	}
	return ok
}

// CancelAll cancels every registered job with cause and returns how many were cancelled.
func (m *JobManager) CancelAll(cause error) int {
	m.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(m.running))
	for id, s := range m.running {
		cancels = append(cancels, s.cancel)
		delete(m.running, id)
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel(cause)
		}
	}
	return len(cancels)
}

// RunningCount returns the number of registered jobs.
func (m *JobManager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// RunningIDs returns the registered ids in sorted order.
func (m *JobManager) RunningIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// MarkRecovered records whether startup recovery has completed.
func (m *JobManager) MarkRecovered(done bool) { m.recovered.Store(done) }

// Recovered reports whether startup recovery has completed.
func (m *JobManager) Recovered() bool { return m.recovered.Load() }

// Status returns a consistent snapshot of the registry.
func (m *JobManager) Status() ManagerStatus {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	count := len(m.running)
	m.mu.Unlock()
	slices.Sort(ids)

	return ManagerStatus{
		RunningCount:  count,
		MaxConcurrent: m.maxConcurrent,
		CanStart:      count < m.maxConcurrent,
		RunningJobIDs: ids,
		Recovered:     m.Recovered(),
	}
}
