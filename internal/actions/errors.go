package actions

import "errors"

// Ошибки выполнения шагов.
var (
	// ErrUnknownStepKind — нет runner'а для данного вида шага.
	ErrUnknownStepKind = errors.New("unknown step kind")

	// ErrEmptyScript — shell-шаг без команды.
	ErrEmptyScript = errors.New("empty shell script")

	// ErrEmptyRef — action-шаг без ссылки.
	ErrEmptyRef = errors.New("empty action ref")

	// ErrActionRequest — вызов внешнего action завершился ошибкой.
	ErrActionRequest = errors.New("action request failed")
)
