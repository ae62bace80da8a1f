package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// Pipeline DTOs

// UpdatePipelineRequest — запрос на обновление pipeline.
type UpdatePipelineRequest struct {
	Name     *string `json:"name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// PipelineResponse — ответ с pipeline.
type PipelineResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// PipelineFromDomain конвертирует domain.Pipeline в PipelineResponse.
func PipelineFromDomain(p domain.Pipeline) PipelineResponse {
	return PipelineResponse{
		ID:        p.ID,
		Name:      p.Name,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
}

// PipelineVersionResponse — ответ с версией pipeline.
type PipelineVersionResponse struct {
	PipelineID uuid.UUID           `json:"pipeline_id"`
	Version    int                 `json:"version"`
	Spec       domain.PipelineSpec `json:"spec"`
	CreatedAt  time.Time           `json:"created_at"`
}

// PipelineVersionFromDomain конвертирует domain.PipelineVersion в ответ.
func PipelineVersionFromDomain(v domain.PipelineVersion) PipelineVersionResponse {
	return PipelineVersionResponse{
		PipelineID: v.PipelineID,
		Version:    v.Version,
		Spec:       v.Spec,
		CreatedAt:  v.CreatedAt,
	}
}

// Event DTOs

// EventRequest — webhook-событие от VCS-хоста.
type EventRequest struct {
	Kind string `json:"kind"` // push, pull_request
	Ref  string `json:"ref"`  // refs/heads/main, refs/tags/v1.2.0
	SHA  string `json:"sha"`
}

// EventResponse — результат обработки события.
type EventResponse struct {
	// Runs — созданные runs (по одному на сработавший pipeline).
	Runs []RunResponse `json:"runs"`
}

// Run DTOs

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID         `json:"id"`
	PipelineID uuid.UUID         `json:"pipeline_id"`
	Version    int               `json:"version"`
	Status     string            `json:"status"`
	Context    domain.RunContext `json:"context"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		PipelineID: r.PipelineID,
		Version:    r.Version,
		Status:     string(r.Status),
		Context:    r.Context,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
	}
}

// Job DTOs

// JobResponse — ответ с job instance.
// Payload наружу не отдаётся: снаружи интересны статус и outputs.
type JobResponse struct {
	ID          uuid.UUID         `json:"id"`
	RunID       uuid.UUID         `json:"run_id"`
	JobName     string            `json:"job_name"`
	InstanceKey string            `json:"instance_key"`
	Matrix      map[string]string `json:"matrix,omitempty"`
	Status      string            `json:"status"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// JobFromDomain конвертирует domain.JobInstance в JobResponse.
func JobFromDomain(j domain.JobInstance) JobResponse {
	return JobResponse{
		ID:          j.ID,
		RunID:       j.RunID,
		JobName:     j.JobName,
		InstanceKey: j.InstanceKey,
		Matrix:      j.Matrix,
		Status:      string(j.Status),
		Outputs:     j.Outputs,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
		CreatedAt:   j.CreatedAt,
	}
}
