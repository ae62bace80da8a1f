package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// handleRunPending обрабатывает событие о новом pending run.
func (o *Orchestrator) handleRunPending(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.RunPendingPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse run.pending payload", "error", err)
		return err
	}

	o.logger.Debug("received run.pending event", "run_id", payload.RunID)

	if o.isRunActive(payload.RunID) {
		o.logger.Debug("run already active, skipping", "run_id", payload.RunID)
		return nil
	}

	if err := o.processRun(ctx, payload.RunID); err != nil {
		if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) {
			o.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
			return nil
		}
		o.logger.Error("failed to process run", "run_id", payload.RunID, "error", err)
		return err
	}

	return nil
}

// handleRunCancelled обрабатывает запрос отмены run.
func (o *Orchestrator) handleRunCancelled(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.RunCancelledPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse run.cancelled payload", "error", err)
		return err
	}

	o.logger.Debug("received run.cancelled event", "run_id", payload.RunID)

	if err := o.processRunCancelled(ctx, payload.RunID); err != nil {
		o.logger.Error("failed to cancel run", "run_id", payload.RunID, "error", err)
		return err
	}
	return nil
}

// handleJobCompleted обрабатывает событие о завершённом job instance.
func (o *Orchestrator) handleJobCompleted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.JobCompletedPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse job.completed payload", "error", err)
		return err
	}

	o.logger.Debug("received job.completed event",
		"job_id", payload.JobID,
		"run_id", payload.RunID,
		"instance_key", payload.InstanceKey,
		"status", payload.Status,
	)

	if err := o.processJobCompleted(ctx, payload); err != nil {
		o.logger.Error("failed to process job completion",
			"job_id", payload.JobID,
			"run_id", payload.RunID,
			"error", err,
		)
		return err
	}
	return nil
}

// processRun обрабатывает новый run.
func (o *Orchestrator) processRun(ctx context.Context, runID uuid.UUID) error {
	// 1. Загружаем run из БД
	run, err := o.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	// 2. Проверяем статус
	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	// 3. Загружаем версию pipeline
	version, err := o.pipelineRepo.GetVersion(ctx, run.PipelineID, run.Version)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return o.failRun(ctx, run, fmt.Sprintf("pipeline version not found: %s v%d", run.PipelineID, run.Version))
		}
		return fmt.Errorf("get pipeline version: %w", err)
	}

	// 4. Создаём RunState и строим граф
	state := NewRunState(run, version)
	if err := state.Initialize(); err != nil {
		// Ошибка определения: граф не строится, run падает не стартовав
		return o.failRun(ctx, run, fmt.Sprintf("pipeline definition rejected: %v", err))
	}

	// 5. Материализуем instances (включая matrix fan-out) одной транзакцией
	instances := state.Materialize()
	if err := o.jobRepo.CreateBatch(ctx, instances); err != nil {
		return fmt.Errorf("create job instances: %w", err)
	}

	// 6. Добавляем в активные runs
	if err := o.addActiveRun(state); err != nil {
		return err
	}

	// 7. Переводим run в RUNNING
	run.MarkRunning()
	if err := o.runRepo.Update(ctx, run); err != nil {
		o.removeActiveRun(runID)
		return fmt.Errorf("update run to running: %w", err)
	}

	o.logger.Info("run started",
		"run_id", runID,
		"pipeline_id", run.PipelineID,
		"version", run.Version,
		"jobs", state.Graph.Size(),
		"instances", len(instances),
	)

	// 8. Диспетчеризуем корневые jobs
	return o.advance(ctx, state)
}

// processJobCompleted обрабатывает завершение job instance.
func (o *Orchestrator) processJobCompleted(ctx context.Context, payload mq.JobCompletedPayload) error {
	// 1. Получаем активный RunState (или восстанавливаем после рестарта)
	state := o.getActiveRun(payload.RunID)
	if state == nil {
		var err error
		state, err = o.restoreRunState(ctx, payload.RunID)
		if err != nil {
			return fmt.Errorf("restore run state: %w", err)
		}
		if state == nil {
			// Run уже завершён или не существует
			o.logger.Debug("run not active and cannot restore", "run_id", payload.RunID)
			return nil
		}
	}

	// 2. Загружаем instance из БД за актуальными outputs
	job, err := o.jobRepo.GetByID(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, payload.JobID)
		}
		return fmt.Errorf("get job: %w", err)
	}

	telemetry.JobsTotal.WithLabelValues(string(job.Status)).Inc()
	if d := job.Duration(); d > 0 {
		telemetry.JobDuration.WithLabelValues(job.JobName).Observe(d.Seconds())
	}

	// 3. Применяем результат; если job ещё не терминален агрегатно
	// (matrix fan-in не завершён) — ждём остальные instances
	if !state.ApplyInstanceResult(job) {
		o.logger.Debug("job instance finished, siblings still running",
			"run_id", payload.RunID,
			"instance_key", job.InstanceKey,
		)
		return nil
	}

	o.logger.Debug("job terminal",
		"run_id", payload.RunID,
		"job", job.JobName,
		"status", payload.Status,
	)

	// 4. Продвигаем граф
	return o.advance(ctx, state)
}

// processRunCancelled отменяет run.
//
// Все нетерминальные instances переводятся в SKIPPED, run — в CANCELLED.
// Уже завершённые jobs сохраняют свои статусы и outputs.
func (o *Orchestrator) processRunCancelled(ctx context.Context, runID uuid.UUID) error {
	run, err := o.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	if run.IsFinished() {
		o.logger.Debug("cancel requested for finished run", "run_id", runID)
		return nil
	}

	state := o.getActiveRun(runID)
	if state == nil {
		state, err = o.restoreRunState(ctx, runID)
		if err != nil {
			return fmt.Errorf("restore run state: %w", err)
		}
	}

	if state != nil {
		run = state.Run
		for _, inst := range state.SkipRemaining("run cancelled") {
			if err := o.jobRepo.Update(ctx, inst); err != nil {
				o.logger.Error("failed to persist skipped instance",
					"run_id", runID,
					"instance_key", inst.InstanceKey,
					"error", err,
				)
			}
		}
	}

	run.MarkCancelled()
	if err := o.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("update run to cancelled: %w", err)
	}

	telemetry.RunsTotal.WithLabelValues(string(domain.RunStatusCancelled)).Inc()
	o.removeActiveRun(runID)

	o.logger.Info("run cancelled", "run_id", runID)
	return nil
}

// advance — один шаг планировщика: диспетчеризует готовые jobs,
// пока граф не перестанет продвигаться, затем проверяет завершение run.
//
// Цикл нужен потому, что пропуск job (условие, упавшая зависимость)
// немедленно делает терминальными его downstream jobs.
func (o *Orchestrator) advance(ctx context.Context, state *RunState) error {
	for {
		ready := state.ReadyJobs()
		if len(ready) == 0 {
			break
		}

		for _, node := range ready {
			if err := o.dispatchJob(ctx, state, node); err != nil {
				o.logger.Error("failed to dispatch job",
					"run_id", state.RunID(),
					"job", node.Name,
					"error", err,
				)
				// Продолжаем с другими jobs
			}
		}
	}

	if state.IsComplete() {
		return o.completeRun(ctx, state)
	}
	return nil
}

// skipReason решает, пропускать ли job целиком: зависимость,
// завершившаяся не-SUCCEEDED, каскадно пропускает dependents,
// если job явно не объявил tolerates_failure.
func skipReason(node *engine.Node, needs map[string]domain.NeedResult) (string, bool) {
	if node.Def.ToleratesFailure {
		return "", false
	}
	for _, dep := range node.Needs {
		if need := needs[dep.Name]; need.Result != string(domain.JobStatusSucceeded) {
			return fmt.Sprintf("dependency %q finished with %s", dep.Name, need.Result), true
		}
	}
	return "", false
}

// instanceVerdict — решение по одному instance перед диспетчеризацией.
type instanceVerdict int

const (
	verdictDispatch instanceVerdict = iota
	verdictSkip
	verdictFail
)

// decideInstance вычисляет условие instance. Неразрешимая ссылка или
// нелогический результат — FAILED, а не молчаливый пропуск; ложное
// условие пропускает только этот instance.
func decideInstance(condition string, ectx *engine.Context) (instanceVerdict, string) {
	ok, err := engine.EvalCondition(condition, ectx)
	if err != nil {
		return verdictFail, fmt.Sprintf("condition %q: %v", condition, err)
	}
	if !ok {
		return verdictSkip, "condition is false"
	}
	return verdictDispatch, ""
}

// dispatchJob решает судьбу job, у которого все needs терминальны:
// пропуск из-за упавшей зависимости, пропуск по условию, либо
// диспетчеризация instances worker'ам.
func (o *Orchestrator) dispatchJob(ctx context.Context, state *RunState, node *engine.Node) error {
	state.MarkDispatched(node.Name)

	needs := state.NeedResults(node)

	if reason, skip := skipReason(node, needs); skip {
		o.logger.Info("job skipped",
			"run_id", state.RunID(),
			"job", node.Name,
			"reason", reason,
		)
		return o.persistSkippedJob(ctx, state, node.Name, reason)
	}

	env := mergeEnv(state.Version.Spec.Env, node.Def.Env)

	// Условие вычисляется на каждый instance: в нём доступен matrix.*
	for _, inst := range state.Instances(node.Name) {
		if inst.Status.IsTerminal() {
			continue
		}

		ectx := engine.NewContext(state.Run.Context)
		ectx.Needs = needs
		ectx.Matrix = inst.Matrix
		ectx.Env = env

		verdict, detail := decideInstance(node.Def.If, ectx)
		if verdict == verdictFail {
			state.MarkInstanceFailed(inst.InstanceKey, detail)
			if uerr := o.jobRepo.Update(ctx, inst); uerr != nil {
				o.logger.Error("failed to persist failed instance",
					"instance_key", inst.InstanceKey, "error", uerr)
			}
			continue
		}
		if verdict == verdictSkip {
			state.MarkInstanceSkipped(inst.InstanceKey, detail)
			if uerr := o.jobRepo.Update(ctx, inst); uerr != nil {
				o.logger.Error("failed to persist skipped instance",
					"instance_key", inst.InstanceKey, "error", uerr)
			}
			o.logger.Debug("instance skipped by condition",
				"run_id", state.RunID(),
				"instance_key", inst.InstanceKey,
			)
			continue
		}

		// Снимок контекста на момент диспетчеризации: worker видит
		// финальные upstream outputs. Секреты в payload не попадают.
		payload := &domain.JobPayload{
			Def:    *node.Def,
			Run:    state.Run.Context,
			Needs:  needs,
			Matrix: inst.Matrix,
			Env:    env,
		}
		state.MarkInstancePending(inst.InstanceKey, payload)

		if err := o.jobRepo.Update(ctx, inst); err != nil {
			return fmt.Errorf("update instance %s: %w", inst.InstanceKey, err)
		}

		if err := o.publisher.PublishJobReady(ctx, inst.ID, state.RunID()); err != nil {
			o.logger.Warn("failed to publish job.ready",
				"job_id", inst.ID,
				"run_id", state.RunID(),
				"error", err,
			)
			// Instance уже PENDING в БД — worker заберёт через polling
		}

		o.logger.Debug("instance dispatched",
			"job_id", inst.ID,
			"run_id", state.RunID(),
			"instance_key", inst.InstanceKey,
		)
	}

	return nil
}

// persistSkippedJob пропускает все instances job и сохраняет их в БД.
func (o *Orchestrator) persistSkippedJob(ctx context.Context, state *RunState, jobName, reason string) error {
	for _, inst := range state.MarkJobSkipped(jobName, reason) {
		if err := o.jobRepo.Update(ctx, inst); err != nil {
			o.logger.Error("failed to persist skipped instance",
				"instance_key", inst.InstanceKey,
				"error", err,
			)
		}
		telemetry.JobsTotal.WithLabelValues(string(domain.JobStatusSkipped)).Inc()
	}
	return nil
}

// completeRun завершает run: FAILED при любом упавшем instance,
// иначе SUCCEEDED (пропуски успеху не мешают).
func (o *Orchestrator) completeRun(ctx context.Context, state *RunState) error {
	run := state.Run

	if state.HasFailed() {
		failed := state.FailedJobs()
		run.MarkFailed(fmt.Sprintf("jobs failed: %v", failed))
		o.logger.Warn("run failed",
			"run_id", run.ID,
			"failed_jobs", failed,
			"duration", run.Duration(),
		)
	} else {
		run.MarkSucceeded()
		o.logger.Info("run succeeded",
			"run_id", run.ID,
			"duration", run.Duration(),
		)
	}

	if err := o.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	telemetry.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	o.removeActiveRun(run.ID)
	return nil
}

// failRun переводит run в статус FAILED, не начав выполнения.
func (o *Orchestrator) failRun(ctx context.Context, run *domain.Run, errMsg string) error {
	run.MarkFailed(errMsg)

	if err := o.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("update run to failed: %w", err)
	}

	telemetry.RunsTotal.WithLabelValues(string(domain.RunStatusFailed)).Inc()
	o.logger.Warn("run failed early",
		"run_id", run.ID,
		"error", errMsg,
	)

	return fmt.Errorf("run failed: %s", errMsg)
}

// restoreRunState восстанавливает RunState из БД.
// Используется, когда событие приходит для run, которого нет в памяти
// (после рестарта Orchestrator).
func (o *Orchestrator) restoreRunState(ctx context.Context, runID uuid.UUID) (*RunState, error) {
	run, err := o.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	if run.IsFinished() {
		return nil, nil
	}

	version, err := o.pipelineRepo.GetVersion(ctx, run.PipelineID, run.Version)
	if err != nil {
		return nil, fmt.Errorf("get pipeline version: %w", err)
	}

	state := NewRunState(run, version)
	if err := state.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize state: %w", err)
	}

	jobs, err := o.jobRepo.ListByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	state.RestoreFromJobs(jobs)

	if err := o.addActiveRun(state); err != nil {
		if errors.Is(err, ErrRunAlreadyActive) {
			return o.getActiveRun(runID), nil
		}
		return nil, err
	}

	o.logger.Info("run state restored",
		"run_id", runID,
		"stats", state.Stats(),
	)

	return state, nil
}

// mergeEnv сливает env уровня pipeline с env уровня job.
// Job-уровень побеждает при совпадении имён.
func mergeEnv(pipeline, job map[string]string) map[string]string {
	merged := make(map[string]string, len(pipeline)+len(job))
	for k, v := range pipeline {
		merged[k] = v
	}
	for k, v := range job {
		merged[k] = v
	}
	return merged
}
