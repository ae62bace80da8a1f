package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?pipeline_id=...&status=...&limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50)

	var runs []domain.Run
	var err error

	if pipelineIDStr := r.URL.Query().Get("pipeline_id"); pipelineIDStr != "" {
		pipelineID, perr := uuid.Parse(pipelineIDStr)
		if perr != nil {
			BadRequest(w, "invalid pipeline_id")
			return
		}
		runs, err = h.runRepo.ListByPipelineID(r.Context(), pipelineID, limit)
	} else {
		status := domain.RunStatus(r.URL.Query().Get("status"))
		runs, err = h.runRepo.List(r.Context(), status, limit)
	}

	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// CancelRun запрашивает отмену run.
// POST /api/v1/runs/{id}/cancel
//
// API только публикует запрос: фактическую отмену (пропуск
// нетерминальных instances) выполняет Orchestrator.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	if run.IsFinished() {
		InvalidState(w, "run is already finished")
		return
	}

	if h.publisher == nil {
		InternalError(w, h.logger, errCancelUnavailable)
		return
	}

	if err := h.publisher.PublishRunCancelled(r.Context(), run.ID); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: RunFromDomain(*run)})
}

// ListRunJobs возвращает job instances run.
// GET /api/v1/runs/{id}/jobs
func (h *Handler) ListRunJobs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	// Проверяем, что run существует
	_, err = h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	jobs, err := h.jobRepo.ListByRunID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		result[i] = JobFromDomain(j)
	}

	List(w, result, len(result))
}

// parseLimit парсит limit из query с дефолтом.
func parseLimit(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
