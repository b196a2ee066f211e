package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// HeaderRequestID carries the request id on requests and responses.
	HeaderRequestID = "X-Request-ID"
	// HeaderSessionID is an alternative to the session_id query parameter.
	HeaderSessionID = "X-Session-ID"
)

const maxRequestIDLen = 128

// requestID reuses a caller-supplied id when it is short and printable.
func requestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return uuid.NewString()
		}
	}
	return id
}

// statusRecorder remembers the status and body size for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Logging tags every request with a request id and writes one access log
// line when it finishes: 5xx at error level, 4xx at warn, the rest at info.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := requestID(r)
			w.Header().Set(HeaderRequestID, id)
			r = r.WithContext(SetRequestIDInContext(r.Context(), id))

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", id),
			)
		})
	}
}

// Recover turns a handler panic into a logged 500. http.ErrAbortHandler is
// re-raised so net/http can abort the connection quietly.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}
				logger.ErrorContext(r.Context(), "handler panic",
					"panic", p,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
					"stack", string(debug.Stack()),
				)
				WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodyBytes caps request bodies at limit bytes. A non-positive limit
// disables the cap.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession scopes the request to the session named by the session_id
// query parameter, falling back to X-Session-ID. Requests with neither get 400.
func RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.URL.Query().Get("session_id"))
			if id == "" {
				id = strings.TrimSpace(r.Header.Get(HeaderSessionID))
			}
			if id == "" {
				WriteError(w, ErrorParams{
					Code:    http.StatusBadRequest,
					ErrCode: "session_required",
					Err:     errors.New("session_id is required"),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSessionIDInContext(r.Context(), id)))
		})
	}
}
