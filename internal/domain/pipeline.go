package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline — зарегистрированное определение CI/CD-конвейера.
//
// Pipeline — это "рецепт" релизного процесса: какие jobs выполнять,
// в каком порядке и по каким событиям. Один pipeline может иметь
// множество версий (PipelineVersion). Каждый запуск (Run) выполняет
// конкретную версию для конкретного триггерного события.
type Pipeline struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя pipeline (например, "release", "nightly-build").
	Name string `json:"name"`

	// IsActive — флаг активности. Неактивные pipelines не реагируют на события.
	IsActive bool `json:"is_active"`

	// CreatedAt — время регистрации pipeline.
	CreatedAt time.Time `json:"created_at"`
}

// PipelineVersion — версия pipeline с конкретной спецификацией.
//
// Версионирование позволяет отслеживать историю изменений определения
// и точно знать, по какой версии выполнялся каждый run.
type PipelineVersion struct {
	// PipelineID — ссылка на родительский pipeline.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Version — номер версии (1, 2, 3, ...). Автоинкремент.
	Version int `json:"version"`

	// Spec — спецификация pipeline.
	Spec PipelineSpec `json:"spec"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}

// PipelineSpec — декларативное определение pipeline.
//
// Авторская поверхность: YAML-документ с триггерами и jobs.
// Хранится в БД как JSONB после парсинга и валидации.
type PipelineSpec struct {
	// Name — имя pipeline (дублирует Pipeline.Name для удобства).
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// On — триггеры: какие события запускают pipeline.
	On TriggerSpec `yaml:"on" json:"on"`

	// Env — переменные окружения уровня pipeline.
	// Доступны во всех jobs через env.<NAME>.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Jobs — определения jobs. Ключ — имя job, используется в needs.
	Jobs map[string]JobDef `yaml:"jobs" json:"jobs"`
}

// TriggerSpec — условия запуска pipeline.
type TriggerSpec struct {
	// Push — триггер на push в ветку или тег.
	Push *PushTrigger `yaml:"push,omitempty" json:"push,omitempty"`

	// PullRequest — триггер на pull request.
	PullRequest *PullRequestTrigger `yaml:"pull_request,omitempty" json:"pull_request,omitempty"`

	// Schedule — cron-триггеры.
	Schedule []ScheduleTrigger `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// PushTrigger — фильтры для push-событий.
//
// Паттерны — глобы ("main", "release/*", "v*"). Пустые списки
// означают "любая ветка" и "теги не запускают" соответственно.
type PushTrigger struct {
	// Branches — глобы веток.
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`

	// Tags — глобы тегов. "*" — любой тег.
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// PullRequestTrigger — фильтры для pull_request-событий.
type PullRequestTrigger struct {
	// Branches — глобы целевых веток.
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`
}

// ScheduleTrigger — запуск по расписанию.
type ScheduleTrigger struct {
	// Cron — cron-выражение: "минуты часы дни месяцы дни_недели".
	Cron string `yaml:"cron" json:"cron"`

	// Timezone — часовой пояс. По умолчанию UTC.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// JobDef — определение job в pipeline.
type JobDef struct {
	// Name — человекочитаемое имя job.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// RunsOn — требование к платформе runner'а (например, "linux-amd64").
	// Подставляется из matrix, если содержит ${{ matrix.* }}.
	RunsOn string `yaml:"runs_on,omitempty" json:"runs_on,omitempty"`

	// Needs — имена jobs, от которых зависит этот job.
	// Job становится готовым, когда все needs достигли терминального статуса.
	Needs []string `yaml:"needs,omitempty" json:"needs,omitempty"`

	// If — условие выполнения (${{ ... }}-выражение).
	// Вычисляется в момент, когда все needs терминальны. False — статус SKIPPED.
	If string `yaml:"if,omitempty" json:"if,omitempty"`

	// ToleratesFailure — выполнять job, даже если зависимость упала или
	// была пропущена. По умолчанию упавшая зависимость даёт SKIPPED.
	ToleratesFailure bool `yaml:"tolerates_failure,omitempty" json:"tolerates_failure,omitempty"`

	// Matrix — оси матричного разворачивания. Ключ — имя оси,
	// значение — список допустимых значений. Декартово произведение
	// осей порождает отдельный JobInstance на каждую комбинацию.
	Matrix map[string][]string `yaml:"matrix,omitempty" json:"matrix,omitempty"`

	// TimeoutSec — таймаут выполнения job. 0 — без таймаута.
	TimeoutSec int `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty"`

	// Env — переменные окружения уровня job.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Steps — упорядоченный список шагов.
	Steps []StepDef `yaml:"steps" json:"steps"`

	// Outputs — выходы job для downstream jobs (needs.<job>.outputs.<key>).
	// Значение — ${{ ... }}-выражение над steps.* контекстом job.
	Outputs map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// StepDef — один шаг внутри job: вызов внешнего action либо shell-команда.
//
// Ровно одно из полей Uses/Run должно быть задано.
type StepDef struct {
	// ID — идентификатор шага для ссылок steps.<id>.outputs.<key>.
	// Опционален для шагов, чьи outputs не используются.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Name — человекочитаемое имя шага.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Uses — ссылка на внешний action (например, "checkout@v4").
	// Action непрозрачен для движка: ему передаются inputs,
	// он возвращает exit status и outputs.
	Uses string `yaml:"uses,omitempty" json:"uses,omitempty"`

	// Run — shell-команда. Выполняется, если Uses пуст.
	Run string `yaml:"run,omitempty" json:"run,omitempty"`

	// With — inputs для action (для Uses). Значения могут содержать ${{ }}.
	With map[string]string `yaml:"with,omitempty" json:"with,omitempty"`

	// Env — переменные окружения шага.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// If — условие выполнения шага.
	If string `yaml:"if,omitempty" json:"if,omitempty"`
}

// IsAction возвращает true, если шаг — вызов внешнего action.
func (s *StepDef) IsAction() bool {
	return s.Uses != ""
}

// HasMatrix возвращает true, если job разворачивается по matrix.
func (j *JobDef) HasMatrix() bool {
	return len(j.Matrix) > 0
}

// Timeout возвращает таймаут job как Duration. 0 — без таймаута.
func (j *JobDef) Timeout() time.Duration {
	return time.Duration(j.TimeoutSec) * time.Second
}
