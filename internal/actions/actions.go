package actions

import (
	"context"
	"fmt"
)

// Invocation — один вызов шага.
//
// Для shell-шага заполнен Script, для action-шага — Ref и Inputs.
// Все значения уже отрендерены: ${{ }}-выражений здесь нет.
type Invocation struct {
	// Ref — ссылка на внешний action ("checkout@v4").
	Ref string

	// Script — shell-команда.
	Script string

	// Inputs — inputs для action.
	Inputs map[string]string

	// Env — переменные окружения шага (включая секреты,
	// подставленные worker'ом; значения не логируются).
	Env map[string]string
}

// Result — результат выполнения шага.
type Result struct {
	// ExitStatus — код завершения. 0 — успех.
	ExitStatus int

	// Outputs — опубликованные шагом outputs (name=value).
	Outputs map[string]string

	// Log — хвост вывода шага для сообщений об ошибках.
	Log string
}

// Runner — исполнитель шага одного вида.
//
// Error из Run — инфраструктурная ошибка (не удалось запустить);
// ненулевой ExitStatus в Result — логическая ошибка самого шага.
type Runner interface {
	Run(ctx context.Context, inv *Invocation) (*Result, error)
}

// Виды шагов.
const (
	KindRun  = "run"  // shell-команда
	KindUses = "uses" // внешний action
)

// Registry — реестр runner'ов по виду шага.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry создаёт реестр с runner'ами по умолчанию.
func NewRegistry() *Registry {
	r := &Registry{runners: make(map[string]Runner)}
	r.Register(KindRun, NewShellRunner())
	r.Register(KindUses, NewActionRunner())
	return r
}

// Register добавляет runner для вида шага.
func (r *Registry) Register(kind string, runner Runner) {
	r.runners[kind] = runner
}

// Get возвращает runner для вида шага.
func (r *Registry) Get(kind string) (Runner, error) {
	runner, ok := r.runners[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepKind, kind)
	}
	return runner, nil
}
