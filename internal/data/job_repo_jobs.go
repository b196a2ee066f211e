package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-jobs/internal/data/pgxutil"
	"github.com/target/mmk-jobs/internal/domain/model"
)

const insertJobSQL = `
  INSERT INTO background_jobs (session_id, job_name, job_type, status, progress, parameters, created_at, updated_at)
  VALUES ($1, $2, $3, 'pending', 0, $4, $5, $5)
  RETURNING ` + jobColumns

// Create inserts a new pending job after validating the request.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()

	var created *model.Job
	if err := pgxutil.WithPgxTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, insertJobSQL,
			strings.TrimSpace(req.SessionID),
			strings.TrimSpace(req.Name),
			req.Type,
			[]byte(req.Parameters),
			now,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		j, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		if err != nil {
			return fmt.Errorf("collect job: %w", err)
		}
		created = j
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// Get returns a job by id. A non-empty sessionID restricts the lookup to that owner.
func (r *JobRepo) Get(ctx context.Context, id, sessionID string) (*model.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrJobIDRequired
	}
	if !validJobID(id) {
		return nil, ErrJobNotFound
	}

	query := `SELECT ` + jobColumns + ` FROM background_jobs WHERE id = $1`
	args := []any{id}
	if sessionID != "" {
		query += ` AND session_id = $2`
		args = append(args, sessionID)
	}

	var out *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query job: %w", err)
		}
		j, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrJobNotFound
			}
			return fmt.Errorf("collect job: %w", err)
		}
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns a session's jobs newest first. result_data is omitted.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	if strings.TrimSpace(opts.SessionID) == "" {
		return nil, errors.New("session id is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 200 {
		opts.Limit = 200
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	b := &jobFilterQueryBuilder{
		query:  `SELECT ` + jobSummaryColumns + ` FROM background_jobs WHERE session_id = $1`,
		args:   []any{opts.SessionID},
		argIdx: 2,
	}
	if opts.Status != nil {
		b.addFilter("status", *opts.Status)
	}
	b.query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", b.argIdx, b.argIdx+1)
	b.args = append(b.args, opts.Limit, opts.Offset)

	return r.queryJobs(ctx, b.query, b.args...)
}

// Delete removes a job owned by sessionID. Returns false when no row matched.
func (r *JobRepo) Delete(ctx context.Context, id, sessionID string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, ErrJobIDRequired
	}
	if !validJobID(id) {
		return false, nil
	}
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM background_jobs WHERE id = $1 AND session_id = $2`, id, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *JobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	var result []*model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query jobs: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		if err != nil {
			return fmt.Errorf("collect jobs: %w", err)
		}
		result = vals
		return nil
	}); err != nil {
		return nil, err
	}
	if result == nil {
		result = []*model.Job{}
	}
	return result, nil
}

type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *jobFilterQueryBuilder) addFilter(column string, value any) {
	if value != nil {
		b.query += fmt.Sprintf(" AND %s = $%d", column, b.argIdx)
		b.args = append(b.args, value)
		b.argIdx++
	}
}

// validJobID reports whether id can match the uuid primary key. Anything else would
// fail in Postgres with invalid_text_representation.
func validJobID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
