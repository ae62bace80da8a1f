package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// handleJobReady обрабатывает событие из очереди jobs.ready.
func (w *Worker) handleJobReady(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.JobReadyPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse job.ready payload", "error", err)
		return err
	}

	w.logger.Debug("received job.ready event",
		"job_id", payload.JobID,
		"run_id", payload.RunID,
	)

	if err := w.processJob(ctx, payload.JobID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobNotPending) {
			w.logger.Debug("job not processed", "job_id", payload.JobID, "reason", err)
			return nil
		}
		w.logger.Error("failed to process job", "job_id", payload.JobID, "error", err)
		return err
	}

	return nil
}

// processJob загружает instance из БД, выполняет и сохраняет результат.
func (w *Worker) processJob(ctx context.Context, jobID uuid.UUID) error {
	// 1. Загружаем instance из БД
	job, err := w.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("get job: %w", err)
	}

	// 2. Проверяем статус и payload
	if job.Status != domain.JobStatusPending {
		return ErrJobNotPending
	}
	if job.Payload == nil {
		return fmt.Errorf("%w: %s", ErrMissingPayload, jobID)
	}

	// 3. Атомарно забираем instance: при нескольких workers
	// выигрывает ровно один
	if err := w.jobRepo.ClaimRunning(ctx, jobID); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrJobNotPending
		}
		return fmt.Errorf("claim job: %w", err)
	}
	job.MarkRunning()

	w.logger.Info("job started",
		"job_id", job.ID,
		"run_id", job.RunID,
		"instance_key", job.InstanceKey,
	)

	// 4. Выполняем шаги
	outputs, execErr := w.execute(ctx, job)

	// 5. Сохраняем результат
	if execErr == nil {
		job.MarkSucceeded(outputs)
		if err := w.jobRepo.Update(ctx, job); err != nil {
			return fmt.Errorf("update job to succeeded: %w", err)
		}

		w.logger.Info("job succeeded",
			"job_id", job.ID,
			"run_id", job.RunID,
			"instance_key", job.InstanceKey,
			"duration", job.Duration(),
		)

		return w.publishCompletion(ctx, job, "")
	}

	errMsg := execErr.Error()
	job.MarkFailed(errMsg)
	if err := w.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job to failed: %w", err)
	}

	w.logger.Warn("job failed",
		"job_id", job.ID,
		"run_id", job.RunID,
		"instance_key", job.InstanceKey,
		"error", errMsg,
	)

	return w.publishCompletion(ctx, job, errMsg)
}

// publishCompletion публикует событие job.completed.
func (w *Worker) publishCompletion(ctx context.Context, job *domain.JobInstance, errMsg string) error {
	if w.publisher == nil {
		w.logger.Warn("publisher not available, skipping job.completed publish",
			"job_id", job.ID,
		)
		return nil
	}

	payload := mq.JobCompletedPayload{
		JobID:       job.ID,
		RunID:       job.RunID,
		JobName:     job.JobName,
		InstanceKey: job.InstanceKey,
		Status:      string(job.Status),
		Error:       errMsg,
	}

	if err := w.publisher.PublishJobCompleted(ctx, payload); err != nil {
		w.logger.Warn("failed to publish job.completed",
			"job_id", job.ID,
			"error", err,
		)
		// Не возвращаем ошибку — instance обновлён в БД,
		// оркестратор подхватит через polling
	}

	return nil
}
