// Package memstore provides an in-memory core.JobStore for service tests.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/data"
	"github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
)

// JobStore is an in-memory core.JobStore for service tests. It mirrors the
// semantics of data.JobRepo, including FIFO ordering and the result size cap.
type JobStore struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	order     []string
	now       func() time.Time
	seq       time.Duration
	mutations int

	// MaxResultBytes overrides the result size cap; zero means the default.
	MaxResultBytes int
	// CompleteHook, when set, replaces Complete's outcome.
	CompleteHook func(id string) (bool, error)
}

var _ core.JobStore = (*JobStore)(nil)

// New creates an empty store.
func New() *JobStore {
	return &JobStore{
		jobs: make(map[string]*model.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts a job as-is, assigning an id and timestamps when missing.
func (s *JobStore) Seed(j model.Job) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.tick()
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}
	cp := j
	s.jobs[j.ID] = &cp
	s.order = append(s.order, j.ID)
	return clone(&cp)
}

// Snapshot returns a copy of the stored job, or nil.
func (s *JobStore) Snapshot(id string) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return clone(j)
	}
	return nil
}

// Mutations returns the number of successful writes.
func (s *JobStore) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// tick returns strictly increasing creation times so FIFO order is deterministic.
func (s *JobStore) tick() time.Time {
	s.seq += time.Microsecond
	return s.now().Add(s.seq)
}

func (s *JobStore) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.Seed(model.Job{
		SessionID:  strings.TrimSpace(req.SessionID),
		Name:       strings.TrimSpace(req.Name),
		Type:       req.Type,
		Status:     model.JobStatusPending,
		Parameters: append([]byte(nil), req.Parameters...),
	}), nil
}

func (s *JobStore) Get(_ context.Context, id, sessionID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || (sessionID != "" && j.SessionID != sessionID) {
		return nil, data.ErrJobNotFound
	}
	return clone(j), nil
}

func (s *JobStore) List(_ context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Job{}
	for i := len(s.order) - 1; i >= 0; i-- {
		j := s.jobs[s.order[i]]
		if j == nil || j.SessionID != opts.SessionID {
			continue
		}
		if opts.Status != nil && j.Status != *opts.Status {
			continue
		}
		out = append(out, clone(j))
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*model.Job{}, nil
		}
		out = out[opts.Offset:]
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobStore) UpdateStatus(_ context.Context, id string, upd model.StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	j.Status = upd.Status
	if upd.Progress != nil {
		j.Progress = min(max(*upd.Progress, 0), 100)
	}
	if upd.ProgressMessage != nil {
		msg := *upd.ProgressMessage
		j.ProgressMessage = &msg
	}
	switch {
	case upd.ClearError:
		j.ErrorMessage = nil
	case upd.ErrorMessage != nil:
		msg := job.TruncateMessage(*upd.ErrorMessage, job.DefaultErrorMessageMax)
		j.ErrorMessage = &msg
	}
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		j.StartedAt = &t
	}
	switch {
	case upd.ClearCompletedAt:
		j.CompletedAt = nil
	case upd.CompletedAt != nil:
		t := *upd.CompletedAt
		j.CompletedAt = &t
	}
	if upd.ResetRetryCount {
		j.RetryCount = 0
	}
	j.UpdatedAt = s.now()
	s.mutations++
	return true, nil
}

func (s *JobStore) IncrementRetry(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return 0, data.ErrJobNotFound
	}
	j.RetryCount++
	s.mutations++
	return j.RetryCount, nil
}

func (s *JobStore) Complete(_ context.Context, id string, res model.WorkResult) (bool, error) {
	if s.CompleteHook != nil {
		if ok, err := s.CompleteHook(id); !ok || err != nil {
			return ok, err
		}
	}
	capped, err := model.CapResult(res, s.MaxResultBytes)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	now := s.now()
	msg := "Complete"
	j.Status = model.JobStatusCompleted
	j.Progress = 100
	j.ProgressMessage = &msg
	j.ResultData = capped.Data
	j.ResultMetadata = capped.Metadata
	j.ErrorMessage = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	s.mutations++
	return true, nil
}

func (s *JobStore) Delete(_ context.Context, id, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.SessionID != sessionID {
		return false, nil
	}
	delete(s.jobs, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	s.mutations++
	return true, nil
}

func (s *JobStore) GetPendingJobs(_ context.Context, limit int) ([]*model.Job, error) {
	return s.filter(limit, func(j *model.Job) bool { return j.Status.IsWaiting() }), nil
}

func (s *JobStore) GetStaleRunningJobs(_ context.Context) ([]*model.Job, error) {
	return s.filter(0, func(j *model.Job) bool { return j.Status == model.JobStatusRunning }), nil
}

func (s *JobStore) MarkStaleJobsAsFailed(_ context.Context, ids []string, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := s.now()
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok || j.Status != model.JobStatusRunning {
			continue
		}
		msg := message
		j.Status = model.JobStatusFailed
		j.ErrorMessage = &msg
		j.CompletedAt = &now
		j.UpdatedAt = now
		n++
	}
	if n > 0 {
		s.mutations++
	}
	return n, nil
}

func (s *JobStore) GetRunningJobsCount(_ context.Context) (int, error) {
	return len(s.filter(0, func(j *model.Job) bool { return j.Status == model.JobStatusRunning })), nil
}

func (s *JobStore) CountBySession(_ context.Context, sessionID string) (model.JobCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c model.JobCounts
	for _, j := range s.jobs {
		if j.SessionID != sessionID {
			continue
		}
		switch {
		case j.Status == model.JobStatusRunning:
			c.Running++
		case j.Status.IsWaiting() || j.Status == model.JobStatusPendingRetry:
			c.Pending++
		}
	}
	return c, nil
}

// filter returns matching jobs in creation order; limit <= 0 means all.
func (s *JobStore) filter(limit int, keep func(*model.Job) bool) []*model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Job{}
	for _, id := range s.order {
		j := s.jobs[id]
		if j == nil || !keep(j) {
			continue
		}
		out = append(out, clone(j))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func clone(j *model.Job) *model.Job {
	cp := *j
	return &cp
}
