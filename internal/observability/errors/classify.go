// Package errors maps job failures onto a small, fixed set of class names
// used as metric tags and in failure notifications.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-jobs/internal/domain/job"
)

// Fixed class names. Errors that match none of them are named after their
// innermost concrete type.
const (
	ClassCanceled          = "context_canceled"
	ClassDeadline          = "deadline_exceeded"
	ClassJobRetryable      = "job_retryable"
	ClassJobFatal          = "job_fatal"
	ClassPostgres          = "postgres"
	ClassPostgresConn      = "postgres_connection"
	ClassPostgresIntegrity = "postgres_integrity"
	ClassPostgresRollback  = "postgres_rollback"
	ClassRedisNil          = "redis_nil"
	ClassNetworkTimeout    = "network_timeout"
	ClassNetwork           = "network"
	ClassUnknown           = "unknown"
)

// Classify returns the class of err, or "" for nil.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassDeadline
	}

	var jobErr *job.Error
	if goerrors.As(err, &jobErr) {
		if jobErr.Kind == job.KindRetryable {
			return ClassJobRetryable
		}
		return ClassJobFatal
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return classifyPostgres(pgErr.Code)
	}
	if goerrors.Is(err, redis.Nil) {
		return ClassRedisNil
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassNetworkTimeout
		}
		return ClassNetwork
	}

	return typeName(innermost(err))
}

func classifyPostgres(code string) string {
	switch {
	case pgerrcode.IsConnectionException(code), pgerrcode.IsOperatorIntervention(code):
		return ClassPostgresConn
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return ClassPostgresIntegrity
	case pgerrcode.IsTransactionRollback(code):
		return ClassPostgresRollback
	default:
		return ClassPostgres
	}
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// typeName turns *pkg.SomeError into pkg_someerror.
func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return ClassUnknown
	}
	return strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
}
