package httpx

import (
	"net/http"

	"github.com/target/mmk-jobs/internal/service"
)

var livenessBody = []byte(`{"status":"ok"}`)

// healthHandler answers liveness probes. It never touches the database so a
// slow dependency cannot get the process restarted.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(livenessBody)
	}
}

// DetailedHealth handles GET /health/detailed. An unhealthy report is served with 503.
func (h *JobHandlers) DetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := h.Svc.Health(r.Context())
	code := http.StatusOK
	if report.Status == service.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, report)
}
