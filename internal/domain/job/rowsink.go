package job

import (
	"sync"

	"github.com/target/mmk-jobs/internal/domain/model"
)

// DefaultMaxRows bounds the number of rows one job may collect.
const DefaultMaxRows = 50000

// RowSink accumulates rows up to a fixed limit. Safe for concurrent use.
type RowSink struct {
	mu      sync.Mutex
	max     int
	rows    []model.Row
	reached bool
}

// NewRowSink returns a sink that accepts at most max rows.
func NewRowSink(max int) *RowSink {
	if max <= 0 {
		max = DefaultMaxRows
	}
	return &RowSink{max: max}
}

// Add appends row. It returns false, dropping row, once the sink is full.
func (s *RowSink) Add(row model.Row) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) >= s.max {
		s.reached = true
		return false
	}
	s.rows = append(s.rows, row)
	return true
}

// Full reports whether further rows would be dropped.
func (s *RowSink) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows) >= s.max
}

// LimitReached reports whether a row was dropped because the sink was full.
func (s *RowSink) LimitReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reached
}

// Max returns the configured limit.
func (s *RowSink) Max() int { return s.max }

// Len returns the number of rows held.
func (s *RowSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Rows returns a copy of the collected rows.
func (s *RowSink) Rows() []model.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Row, len(s.rows))
	copy(out, s.rows)
	return out
}
