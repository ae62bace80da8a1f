package engine

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ParseSpec парсит PipelineSpec из YAML и валидирует его.
//
// Это авторская поверхность: YAML с триггерами и jobs.
// Любая ошибка здесь — DefinitionError, run не создаётся.
func ParseSpec(data []byte) (*domain.PipelineSpec, error) {
	var spec domain.PipelineSpec

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parse pipeline yaml: %w", err)
	}

	if err := Validate(&spec); err != nil {
		return nil, err
	}

	return &spec, nil
}

// Validate выполняет полную валидацию PipelineSpec.
//
// Проверяет:
// - Наличие хотя бы одного триггера и хотя бы одного job
// - Каждый job: наличие шагов, ровно одно из uses/run на шаг,
//   уникальность ID шагов, корректность needs, валидность matrix
// - Синтаксис всех ${{ }}-выражений (if, with, env, outputs, runs_on)
// - Отсутствие циклов в needs (делегируется BuildGraph)
func Validate(spec *domain.PipelineSpec) error {
	if spec == nil || len(spec.Jobs) == 0 {
		return ErrNoJobs
	}

	if spec.On.Push == nil && spec.On.PullRequest == nil && len(spec.On.Schedule) == 0 {
		return ErrNoTriggers
	}

	for name := range spec.Jobs {
		def := spec.Jobs[name]
		if err := validateJob(name, &def, spec.Jobs); err != nil {
			return err
		}
	}

	// Циклы и развёртка matrix проверяются построением графа
	if _, err := BuildGraph(spec); err != nil {
		return err
	}

	return nil
}

// validateJob валидирует один job.
func validateJob(name string, def *domain.JobDef, jobs map[string]domain.JobDef) error {
	if len(def.Steps) == 0 {
		return NewValidationError(name, "steps", "job has no steps", ErrNoSteps)
	}

	// Needs: существование и self-dependency
	for _, dep := range def.Needs {
		if dep == name {
			return NewValidationError(name, "needs", "job needs itself", ErrSelfDependency)
		}
		if _, exists := jobs[dep]; !exists {
			return NewValidationError(name, "needs",
				fmt.Sprintf("needs unknown job: %s", dep), ErrMissingDependency)
		}
	}

	// Условие job
	if err := CheckCondition(def.If); err != nil {
		return NewValidationError(name, "if", err.Error(), err)
	}

	// Выражения в runs_on, env и outputs
	if err := CheckExpressions(def.RunsOn); err != nil {
		return NewValidationError(name, "runs_on", err.Error(), err)
	}
	for key, value := range def.Env {
		if err := CheckExpressions(value); err != nil {
			return NewValidationError(name, "env."+key, err.Error(), err)
		}
	}
	for key, value := range def.Outputs {
		if err := CheckExpressions(value); err != nil {
			return NewValidationError(name, "outputs."+key, err.Error(), err)
		}
	}

	// Шаги
	stepIDs := make(map[string]bool)
	for i := range def.Steps {
		step := &def.Steps[i]
		if err := validateStep(name, i, step, stepIDs); err != nil {
			return err
		}
	}

	return nil
}

// validateStep валидирует один шаг job.
func validateStep(job string, index int, step *domain.StepDef, stepIDs map[string]bool) error {
	// Ровно одно из uses/run
	hasUses := step.Uses != ""
	hasRun := step.Run != ""
	if hasUses == hasRun {
		return NewValidationError(job, fmt.Sprintf("steps[%d]", index),
			"step must have exactly one of uses or run", ErrAmbiguousStep)
	}

	// Уникальность ID
	if step.ID != "" {
		if stepIDs[step.ID] {
			return NewValidationError(job, fmt.Sprintf("steps[%d].id", index),
				fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
		}
		stepIDs[step.ID] = true
	}

	// Выражения
	if err := CheckCondition(step.If); err != nil {
		return NewValidationError(job, fmt.Sprintf("steps[%d].if", index), err.Error(), err)
	}
	if err := CheckExpressions(step.Run); err != nil {
		return NewValidationError(job, fmt.Sprintf("steps[%d].run", index), err.Error(), err)
	}
	for key, value := range step.With {
		if err := CheckExpressions(value); err != nil {
			return NewValidationError(job, fmt.Sprintf("steps[%d].with.%s", index, key), err.Error(), err)
		}
	}
	for key, value := range step.Env {
		if err := CheckExpressions(value); err != nil {
			return NewValidationError(job, fmt.Sprintf("steps[%d].env.%s", index, key), err.Error(), err)
		}
	}

	return nil
}
