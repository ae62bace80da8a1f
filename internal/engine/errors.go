package engine

import "errors"

// Ошибки валидации PipelineSpec (DefinitionError — фатальны,
// run с таким определением не стартует).
var (
	// ErrNoJobs — pipeline не содержит jobs.
	ErrNoJobs = errors.New("pipeline spec has no jobs")

	// ErrNoTriggers — pipeline не содержит ни одного триггера.
	ErrNoTriggers = errors.New("pipeline spec has no triggers")

	// ErrNoSteps — job не содержит шагов.
	ErrNoSteps = errors.New("job has no steps")

	// ErrAmbiguousStep — шаг задаёт и uses, и run (либо ни одного).
	ErrAmbiguousStep = errors.New("step must have exactly one of uses or run")

	// ErrDuplicateStepID — несколько шагов job с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrMissingDependency — needs ссылается на несуществующий job.
	ErrMissingDependency = errors.New("job needs unknown job")

	// ErrSelfDependency — job зависит от самого себя.
	ErrSelfDependency = errors.New("job needs itself")

	// ErrCyclicDependency — обнаружен цикл в needs.
	ErrCyclicDependency = errors.New("cyclic dependency in needs")

	// ErrEmptyMatrixAxis — ось matrix не содержит значений.
	ErrEmptyMatrixAxis = errors.New("matrix axis has no values")

	// ErrEmptyMatrix — matrix объявлен, но не содержит ни одной оси.
	ErrEmptyMatrix = errors.New("matrix has no axes")

	// ErrDuplicateMatrixValue — повторяющееся значение оси
	// (дало бы два instance с одним ключом).
	ErrDuplicateMatrixValue = errors.New("duplicate matrix axis value")

	// ErrDuplicateInstanceKey — ключ instance встречается у двух jobs:
	// job с буквальным именем "build (linux)" рядом с matrix job "build".
	ErrDuplicateInstanceKey = errors.New("duplicate instance key")
)

// Ошибки выражений ${{ }}.
var (
	// ErrExprSyntax — выражение не парсится.
	ErrExprSyntax = errors.New("expression syntax error")

	// ErrUnknownReference — ссылка не разрешается в контексте.
	ErrUnknownReference = errors.New("unknown reference in expression")

	// ErrNotBoolean — условие вычислилось не в bool.
	ErrNotBoolean = errors.New("condition is not a boolean")
)

// ValidationError — ошибка валидации с привязкой к месту в определении.
type ValidationError struct {
	Job     string // имя job, где произошла ошибка (пусто для уровня pipeline)
	Field   string // поле, вызвавшее ошибку
	Message string // описание
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Job != "" {
		return "job " + e.Job + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(job, field, message string, err error) *ValidationError {
	return &ValidationError{
		Job:     job,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
