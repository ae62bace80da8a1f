package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// execute выполняет шаги instance последовательно.
//
// Возвращает отрендеренные outputs job при успехе. Первый упавший шаг
// прерывает job: оставшиеся шаги не выполняются, outputs не публикуются.
func (w *Worker) execute(ctx context.Context, job *domain.JobInstance) (map[string]string, error) {
	payload := job.Payload
	def := &payload.Def

	// Таймаут уровня job
	if timeout := def.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Контекст выражений: снимок из payload плюс локальные секреты.
	// По мере выполнения шагов сюда публикуются их результаты.
	ectx := engine.NewContext(payload.Run)
	ectx.Needs = payload.Needs
	ectx.Matrix = payload.Matrix
	ectx.Secrets = w.secrets

	env, err := engine.RenderMap(payload.Env, ectx)
	if err != nil {
		return nil, fmt.Errorf("render job env: %w", err)
	}
	ectx.Env = env

	for i := range def.Steps {
		step := &def.Steps[i]
		if err := w.executeStep(ctx, job, ectx, step, i); err != nil {
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecutionTimeout, ctx.Err())
		}
	}

	// Outputs job рендерятся в самом конце, над steps.* контекстом
	outputs, err := engine.RenderMap(def.Outputs, ectx)
	if err != nil {
		return nil, fmt.Errorf("render job outputs: %w", err)
	}

	return outputs, nil
}

// executeStep выполняет один шаг и публикует его результат в контекст.
func (w *Worker) executeStep(ctx context.Context, job *domain.JobInstance, ectx *engine.Context, step *domain.StepDef, index int) error {
	stepName := step.Name
	if stepName == "" {
		stepName = fmt.Sprintf("step #%d", index+1)
	}

	// Условие шага: false — шаг пропускается, job продолжается
	shouldRun, err := engine.EvalCondition(step.If, ectx)
	if err != nil {
		return fmt.Errorf("step %q condition: %w", stepName, err)
	}
	if !shouldRun {
		w.logger.Debug("step skipped by condition",
			"job_id", job.ID,
			"step", stepName,
		)
		return nil
	}

	inv, kind, err := w.renderStep(ectx, step)
	if err != nil {
		return fmt.Errorf("step %q: %w", stepName, err)
	}

	runner, err := w.registry.Get(kind)
	if err != nil {
		return fmt.Errorf("step %q: %w", stepName, err)
	}

	w.logger.Debug("step started",
		"job_id", job.ID,
		"step", stepName,
		"kind", kind,
	)

	started := time.Now()
	result, err := runner.Run(ctx, inv)
	telemetry.StepDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())

	if err != nil {
		ectx.AddStepResult(step.ID, string(domain.JobStatusFailed), nil)
		return fmt.Errorf("step %q: %w", stepName, err)
	}

	if result.ExitStatus != 0 {
		ectx.AddStepResult(step.ID, string(domain.JobStatusFailed), result.Outputs)
		if result.Log != "" {
			return fmt.Errorf("%w: step %q exited with %d: %s",
				ErrStepFailed, stepName, result.ExitStatus, result.Log)
		}
		return fmt.Errorf("%w: step %q exited with %d",
			ErrStepFailed, stepName, result.ExitStatus)
	}

	ectx.AddStepResult(step.ID, string(domain.JobStatusSucceeded), result.Outputs)

	w.logger.Debug("step succeeded",
		"job_id", job.ID,
		"step", stepName,
		"outputs", len(result.Outputs),
	)

	return nil
}

// renderStep рендерит поля шага и собирает Invocation.
// Неразрешимая ссылка в любом поле роняет job.
func (w *Worker) renderStep(ectx *engine.Context, step *domain.StepDef) (*actions.Invocation, string, error) {
	env, err := engine.RenderMap(step.Env, ectx)
	if err != nil {
		return nil, "", fmt.Errorf("render env: %w", err)
	}
	env = mergeEnv(ectx.Env, env)

	if step.IsAction() {
		inputs, err := engine.RenderMap(step.With, ectx)
		if err != nil {
			return nil, "", fmt.Errorf("render inputs: %w", err)
		}
		return &actions.Invocation{
			Ref:    step.Uses,
			Inputs: inputs,
			Env:    env,
		}, actions.KindUses, nil
	}

	script, err := engine.Render(step.Run, ectx)
	if err != nil {
		return nil, "", fmt.Errorf("render script: %w", err)
	}
	return &actions.Invocation{
		Script: script,
		Env:    env,
	}, actions.KindRun, nil
}

// mergeEnv сливает env job с env шага. Шаг побеждает.
func mergeEnv(job, step map[string]string) map[string]string {
	merged := make(map[string]string, len(job)+len(step))
	for k, v := range job {
		merged[k] = v
	}
	for k, v := range step {
		merged[k] = v
	}
	return merged
}
