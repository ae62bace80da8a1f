package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

var errCancelUnavailable = errors.New("message queue unavailable, cancellation not possible")

// SubmitEvent принимает webhook-событие и раздаёт его pipelines.
// POST /api/v1/events
//
// Событие сверяется с триггерами последней версии каждого активного
// pipeline. Для каждого совпадения создаётся run; pipelines без
// совпадения событие молча игнорируют. Ответ — созданные runs.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	kind := domain.EventKind(req.Kind)
	switch kind {
	case domain.EventPush, domain.EventPullRequest:
	default:
		BadRequest(w, "kind must be push or pull_request")
		return
	}
	if req.Ref == "" {
		BadRequest(w, "ref is required")
		return
	}

	event := domain.Event{
		Kind: kind,
		Ref:  req.Ref,
		SHA:  req.SHA,
	}
	telemetry.EventsTotal.WithLabelValues(string(kind)).Inc()

	pipelines, err := h.pipelineRepo.ListActive(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	created := make([]RunResponse, 0)
	for i := range pipelines {
		run, err := h.dispatchEvent(r, &pipelines[i], event)
		if err != nil {
			h.logger.Error("failed to dispatch event to pipeline",
				"pipeline_id", pipelines[i].ID,
				"error", err,
			)
			// Остальные pipelines не блокируем
			continue
		}
		if run != nil {
			created = append(created, RunFromDomain(*run))
		}
	}

	h.logger.Info("event processed",
		"kind", req.Kind,
		"ref", req.Ref,
		"runs_created", len(created),
	)

	JSON(w, http.StatusOK, DataResponse{Data: EventResponse{Runs: created}})
}

// dispatchEvent сверяет событие с одним pipeline.
// Возвращает созданный run или nil, если триггеры не совпали.
func (h *Handler) dispatchEvent(r *http.Request, p *domain.Pipeline, event domain.Event) (*domain.Run, error) {
	version, err := h.pipelineRepo.GetLatestVersion(r.Context(), p.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Pipeline без версий — нечего запускать
			return nil, nil
		}
		return nil, err
	}

	ok, runCtx := trigger.Evaluate(&version.Spec.On, event)
	if !ok {
		return nil, nil
	}

	run := &domain.Run{
		ID:         uuid.New(),
		PipelineID: p.ID,
		Version:    version.Version,
		Status:     domain.RunStatusPending,
		Context:    runCtx,
		CreatedAt:  time.Now(),
	}

	if err := h.runRepo.Create(r.Context(), run); err != nil {
		return nil, err
	}

	h.logger.Info("run created from event",
		"run_id", run.ID,
		"pipeline_id", p.ID,
		"pipeline_name", p.Name,
		"kind", event.Kind,
		"ref", event.Ref,
	)

	if h.publisher != nil {
		if err := h.publisher.PublishRunPending(r.Context(), run.ID); err != nil {
			// Run уже в БД — Orchestrator заберёт через polling
			h.logger.Warn("failed to publish run.pending",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	return run, nil
}
