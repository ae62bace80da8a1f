package engine

import (
	"fmt"
	"strconv"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Context — неизменяемый снимок данных для вычисления ${{ }}-выражений.
//
// Снимок собирается непосредственно перед вычислением (lazily), поэтому
// выражение всегда видит последние опубликованные upstream outputs.
// Доступные корни ссылок:
//   - run.*                      — контекст триггера
//   - needs.<job>.result         — терминальный статус зависимости
//   - needs.<job>.outputs.<key>  — outputs зависимости
//   - matrix.<axis>              — значение оси для этого instance
//   - steps.<id>.outputs.<key>   — outputs предыдущих шагов job
//   - env.<NAME>                 — переменные окружения
//   - secrets.<NAME>             — секреты (только в worker'е)
type Context struct {
	// Run — контекст триггера.
	Run domain.RunContext

	// Needs — результаты зависимостей (имя job → результат).
	Needs map[string]domain.NeedResult

	// Matrix — значения осей для текущего instance.
	Matrix map[string]string

	// Steps — результаты уже выполненных шагов текущего job.
	Steps map[string]StepResult

	// Env — переменные окружения.
	Env map[string]string

	// Secrets — источник секретов. Nil вне worker'а: ссылка на
	// secrets.* тогда не разрешается. Значения никогда не логируются
	// и не сохраняются.
	Secrets SecretSource
}

// StepResult — результат шага для ссылок steps.<id>.*.
type StepResult struct {
	// Outcome — "SUCCEEDED" или "FAILED".
	Outcome string

	// Outputs — объявленные outputs шага.
	Outputs map[string]string
}

// SecretSource — read-only источник секретов.
type SecretSource func(name string) (string, bool)

// NewContext создаёт контекст с заданным run-контекстом.
func NewContext(run domain.RunContext) *Context {
	return &Context{
		Run:   run,
		Needs: make(map[string]domain.NeedResult),
		Steps: make(map[string]StepResult),
	}
}

// AddStepResult публикует результат шага в контекст.
func (c *Context) AddStepResult(stepID, outcome string, outputs map[string]string) {
	if stepID == "" {
		return
	}
	if outputs == nil {
		outputs = make(map[string]string)
	}
	c.Steps[stepID] = StepResult{Outcome: outcome, Outputs: outputs}
}

// lookup разрешает путь ссылки по контексту.
// Неразрешимая ссылка — ErrUnknownReference: по контракту она
// роняет объемлющий job, а не подставляет пустую строку.
func (c *Context) lookup(path []string) (any, error) {
	fail := func() (any, error) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, joinPath(path))
	}

	if len(path) < 2 {
		return fail()
	}

	switch path[0] {
	case "run":
		if len(path) != 2 {
			return fail()
		}
		return c.lookupRun(path[1], path)

	case "needs":
		need, ok := c.Needs[path[1]]
		if !ok {
			return fail()
		}
		if len(path) == 3 && path[2] == "result" {
			return need.Result, nil
		}
		if len(path) == 4 && path[2] == "outputs" {
			value, ok := need.Outputs[path[3]]
			if !ok {
				return fail()
			}
			return value, nil
		}
		return fail()

	case "matrix":
		if len(path) != 2 {
			return fail()
		}
		value, ok := c.Matrix[path[1]]
		if !ok {
			return fail()
		}
		return value, nil

	case "steps":
		step, ok := c.Steps[path[1]]
		if !ok {
			return fail()
		}
		if len(path) == 3 && path[2] == "outcome" {
			return step.Outcome, nil
		}
		if len(path) == 4 && path[2] == "outputs" {
			value, ok := step.Outputs[path[3]]
			if !ok {
				return fail()
			}
			return value, nil
		}
		return fail()

	case "env":
		if len(path) != 2 {
			return fail()
		}
		value, ok := c.Env[path[1]]
		if !ok {
			return fail()
		}
		return value, nil

	case "secrets":
		if len(path) != 2 || c.Secrets == nil {
			return fail()
		}
		value, ok := c.Secrets(path[1])
		if !ok {
			return fail()
		}
		return value, nil

	default:
		return fail()
	}
}

// lookupRun разрешает поля run.*.
func (c *Context) lookupRun(field string, path []string) (any, error) {
	switch field {
	case "event":
		return string(c.Run.Event), nil
	case "ref":
		return c.Run.Ref, nil
	case "sha":
		return c.Run.SHA, nil
	case "is_push":
		return c.Run.IsPush, nil
	case "is_tag_push":
		return c.Run.IsTagPush, nil
	case "tag_name":
		return c.Run.TagName, nil
	case "branch":
		return c.Run.Branch, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, joinPath(path))
	}
}

// joinPath собирает путь обратно в строку для сообщений об ошибках.
func joinPath(path []string) string {
	s := path[0]
	for _, p := range path[1:] {
		s += "." + p
	}
	return s
}

// stringify приводит значение выражения к строке для интерполяции.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
