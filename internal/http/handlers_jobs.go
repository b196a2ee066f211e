package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/service"
)

const (
	defaultJobListLimit = 50
	maxJobListLimit     = 100
)

// JobHandlers serves the job API.
type JobHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

type jobStartResponse struct {
	*model.Job
	Start   service.StartOutcome `json:"start"`
	Message string               `json:"message"`
}

func newJobStartResponse(res *service.CreateJobResult) jobStartResponse {
	return jobStartResponse{Job: res.Job, Start: res.Start, Message: res.Message}
}

// CreateJob handles POST /api/jobs.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if err := decodeStrict(r, &req); err != nil {
		if errors.Is(err, model.ErrInvalidJobType) {
			writeServiceError(w, r, h.Logger, err)
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return
	}

	res, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, newJobStartResponse(res))
}

// ListJobs handles GET /api/jobs.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	status, err := model.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_status", Err: err})
		return
	}
	limit, offset := ParseLimitOffset(r, defaultJobListLimit, maxJobListLimit)

	res, err := h.Svc.List(r.Context(), model.JobListOptions{
		SessionID: sessionID,
		Status:    status,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// ManagerStatus handles GET /api/jobs/status.
func (h *JobHandlers) ManagerStatus(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.Svc.Status())
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	job, err := h.Svc.Get(r.Context(), r.PathValue("id"), sessionID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetProgress handles GET /api/jobs/{id}/progress.
func (h *JobHandlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	snap, err := h.Svc.Progress(r.Context(), r.PathValue("id"), sessionID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// GetResult handles GET /api/jobs/{id}/result. The optional query parameter is a JMESPath
// projection applied to the stored rows.
func (h *JobHandlers) GetResult(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	id := r.PathValue("id")
	out, err := h.Svc.QueryResult(r.Context(), id, sessionID, r.URL.Query().Get("query"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"job_id": id, "result": out})
}

// DeleteJob handles DELETE /api/jobs/{id}.
func (h *JobHandlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	res, err := h.Svc.Delete(r.Context(), r.PathValue("id"), sessionID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// RetryJob handles POST /api/jobs/{id}/retry.
func (h *JobHandlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	res, err := h.Svc.Retry(r.Context(), r.PathValue("id"), sessionID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, newJobStartResponse(res))
}

// RecoverJobs handles POST /api/jobs/recover and POST /health/recover-jobs.
func (h *JobHandlers) RecoverJobs(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Svc.Recover(r.Context()))
}
