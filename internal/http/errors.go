package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/mmk-jobs/internal/data"
	"github.com/target/mmk-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-jobs/internal/errors"
	"github.com/target/mmk-jobs/internal/service"
)

// statusClientClosedRequest only ever reaches the access log; the client is gone.
const statusClientClosedRequest = 499

var sentinelCodes = []struct {
	err  error
	code apperrors.Code
}{
	{data.ErrJobNotFound, apperrors.CodeNotFound},
	{service.ErrResultUnavailable, apperrors.CodeNotFound},
	{service.ErrJobNotRetryable, apperrors.CodeInvalidState},
	{service.ErrJobNotCompleted, apperrors.CodeInvalidState},
	{service.ErrInvalidQuery, "invalid_query"},
	{model.ErrInvalidJobType, "invalid_job_type"},
}

var codeStatus = map[apperrors.Code]int{
	apperrors.CodeNotFound:     http.StatusNotFound,
	apperrors.CodeConflict:     http.StatusConflict,
	apperrors.CodeValidation:   http.StatusBadRequest,
	apperrors.CodeInvalidState: http.StatusBadRequest,
	"invalid_query":            http.StatusBadRequest,
	"invalid_job_type":         http.StatusBadRequest,
	apperrors.CodeTimeout:      http.StatusGatewayTimeout,
	apperrors.CodeCanceled:     statusClientClosedRequest,
}

func errorCode(err error) apperrors.Code {
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return apperrors.CodeOf(apperrors.FromDB(err))
}

// writeServiceError maps service and store errors onto HTTP statuses.
// Anything unrecognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := errorCode(err)
	if status, ok := codeStatus[code]; ok {
		WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: err})
		return
	}

	if logger != nil {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusInternalServerError,
		ErrCode: string(apperrors.CodeInternal),
		Err:     errors.New("internal server error"),
	})
}
