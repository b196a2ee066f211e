package errors

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Matches the column in `Key (id)=(...) already exists.`
var uniqueDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)

var checkColumns = map[string]string{
	"background_jobs_status_check":   "status",
	"background_jobs_type_check":     "job_type",
	"background_jobs_progress_check": "progress",
}

// FromDB converts context, pgx and Postgres errors into coded errors. Any
// other error, and nil, is returned as is.
func FromDB(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, CodeTimeout, "database call timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, CodeCanceled, "database call canceled")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, CodeNotFound, "no matching row")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	ae := &AppError{Cause: err, Field: pgErr.ColumnName}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		ae.Code, ae.Message = CodeConflict, "duplicate value"
		if ae.Field == "" {
			if m := uniqueDetail.FindStringSubmatch(pgErr.Detail); m != nil {
				ae.Field = m[1]
			}
		}
	case pgerrcode.CheckViolation:
		ae.Code, ae.Message = CodeValidation, "value out of range"
		if ae.Field == "" {
			ae.Field = checkColumns[pgErr.ConstraintName]
		}
	case pgerrcode.NotNullViolation:
		ae.Code, ae.Message = CodeValidation, "missing required value"
	case pgerrcode.InvalidTextRepresentation:
		ae.Code, ae.Message = CodeValidation, "malformed value"
	default:
		ae.Code, ae.Message = CodeInternal, "database error"
	}
	return ae
}
