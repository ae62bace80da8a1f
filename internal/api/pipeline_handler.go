package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

const maxSpecSize = 1 << 20 // 1 MiB

// RegisterPipeline регистрирует pipeline из YAML-определения.
// POST /api/v1/pipelines (body: YAML)
//
// Спецификация валидируется целиком — граф, matrix, выражения.
// Невалидное определение отклоняется с 400, run не создаётся.
func (h *Handler) RegisterPipeline(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.readSpec(w, r)
	if !ok {
		return
	}

	if spec.Name == "" {
		BadRequest(w, "pipeline name is required")
		return
	}

	pipeline := &domain.Pipeline{
		ID:        uuid.New(),
		Name:      spec.Name,
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	if err := h.pipelineRepo.Create(r.Context(), pipeline); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			Conflict(w, "pipeline with this name already exists")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	version, err := h.pipelineRepo.CreateVersion(r.Context(), pipeline.ID, *spec)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("pipeline registered",
		"pipeline_id", pipeline.ID,
		"name", pipeline.Name,
		"version", version.Version,
	)

	Created(w, PipelineVersionFromDomain(*version))
}

// CreatePipelineVersion добавляет новую версию существующего pipeline.
// POST /api/v1/pipelines/{id}/versions (body: YAML)
func (h *Handler) CreatePipelineVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	spec, ok := h.readSpec(w, r)
	if !ok {
		return
	}

	_, err = h.pipelineRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	version, err := h.pipelineRepo.CreateVersion(r.Context(), id, *spec)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, PipelineVersionFromDomain(*version))
}

// readSpec читает и валидирует YAML-определение из тела запроса.
func (h *Handler) readSpec(w http.ResponseWriter, r *http.Request) (*domain.PipelineSpec, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSpecSize))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return nil, false
	}

	spec, err := engine.ParseSpec(body)
	if err != nil {
		BadRequest(w, err.Error())
		return nil, false
	}

	// Cron-выражения schedule-триггеров проверяются здесь:
	// движку они не нужны, планировщику — критичны
	for _, sched := range spec.On.Schedule {
		if err := scheduler.ValidateCron(sched.Cron); err != nil {
			BadRequest(w, err.Error())
			return nil, false
		}
	}

	return spec, true
}

// ListPipelines возвращает список pipelines.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.pipelineRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineResponse, len(pipelines))
	for i, p := range pipelines {
		result[i] = PipelineFromDomain(p)
	}

	List(w, result, len(result))
}

// GetPipeline возвращает pipeline по ID.
// GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	pipeline, err := h.pipelineRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDomain(*pipeline))
}

// UpdatePipeline обновляет pipeline (имя, активность).
// PUT /api/v1/pipelines/{id}
func (h *Handler) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	var req UpdatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	pipeline, err := h.pipelineRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	if req.Name != nil {
		pipeline.Name = *req.Name
	}
	if req.IsActive != nil {
		pipeline.IsActive = *req.IsActive
	}

	if err := h.pipelineRepo.Update(r.Context(), pipeline); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, PipelineFromDomain(*pipeline))
}

// DeletePipeline удаляет pipeline вместе с версиями и runs.
// DELETE /api/v1/pipelines/{id}
func (h *Handler) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	err = h.pipelineRepo.Delete(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	NoContent(w)
}

// ListPipelineVersions возвращает версии pipeline.
// GET /api/v1/pipelines/{id}/versions
func (h *Handler) ListPipelineVersions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	versions, err := h.pipelineRepo.ListVersions(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineVersionResponse, len(versions))
	for i, v := range versions {
		result[i] = PipelineVersionFromDomain(v)
	}

	List(w, result, len(result))
}

// GetPipelineVersion возвращает конкретную версию pipeline.
// GET /api/v1/pipelines/{id}/versions/{version}
func (h *Handler) GetPipelineVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	versionNum, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || versionNum < 1 {
		BadRequest(w, "invalid version number")
		return
	}

	version, err := h.pipelineRepo.GetVersion(r.Context(), id, versionNum)
	if HandleRepoError(w, h.logger, err, "pipeline version not found") {
		return
	}

	Success(w, PipelineVersionFromDomain(*version))
}
