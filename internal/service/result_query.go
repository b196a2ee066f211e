package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-jobs/internal/domain/model"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// QueryResult returns the stored result rows of a completed job. A non-empty expr projects
// the rows through a JMESPath expression, e.g. "[?Channel=='ZDF'].Company".
func (s *JobService) QueryResult(ctx context.Context, id, sessionID, expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if err := s.jems.Validate(expr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	job, err := s.Get(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrJobNotCompleted
	}
	if len(job.ResultData) == 0 || string(job.ResultData) == "null" {
		return nil, ErrResultUnavailable
	}

	var rows any
	if err := json.Unmarshal(job.ResultData, &rows); err != nil {
		return nil, fmt.Errorf("decode result data: %w", err)
	}
	if expr == "" {
		return rows, nil
	}

	out, err := s.jems.Evaluate(expr, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return out, nil
}
