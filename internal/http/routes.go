package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/mmk-jobs/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Jobs   *service.JobService
	Logger *slog.Logger // Optional; defaults to slog.Default()
}

// NewRouter creates the API router. Cross-cutting middleware is applied by the caller.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	jobHandlers := &JobHandlers{Svc: services.Jobs, Logger: logger.With("component", "http")}

	registerJobRoutes(mux, jobHandlers)
	registerHealthRoutes(mux, jobHandlers)

	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	session := RequireSession()

	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.Handle("GET /api/jobs", session(http.HandlerFunc(h.ListJobs)))
	mux.HandleFunc("GET /api/jobs/status", h.ManagerStatus)
	mux.HandleFunc("POST /api/jobs/recover", h.RecoverJobs)
	mux.Handle("GET /api/jobs/{id}", session(http.HandlerFunc(h.GetJob)))
	mux.Handle("DELETE /api/jobs/{id}", session(http.HandlerFunc(h.DeleteJob)))
	mux.Handle("GET /api/jobs/{id}/progress", session(http.HandlerFunc(h.GetProgress)))
	mux.Handle("GET /api/jobs/{id}/result", session(http.HandlerFunc(h.GetResult)))
	mux.Handle("POST /api/jobs/{id}/retry", session(http.HandlerFunc(h.RetryJob)))
}

func registerHealthRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.HandleFunc("GET /health/detailed", h.DetailedHealth)
	mux.HandleFunc("POST /health/recover-jobs", h.RecoverJobs)
}
