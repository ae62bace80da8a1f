package domain

// EventKind — вид триггерного события от VCS-хоста.
type EventKind string

const (
	// EventPush — push в ветку или тег.
	EventPush EventKind = "push"

	// EventPullRequest — открытие/обновление pull request.
	EventPullRequest EventKind = "pull_request"

	// EventSchedule — синтетическое событие от cron-планировщика.
	EventSchedule EventKind = "schedule"
)

// Event — дескриптор входящего события.
//
// Приходит от внешнего VCS-хоста (webhook) либо синтезируется
// планировщиком. Неизменяем после создания.
type Event struct {
	// Kind — вид события.
	Kind EventKind `json:"kind"`

	// Ref — полный ref: "refs/heads/main", "refs/tags/v1.2.3".
	Ref string `json:"ref"`

	// SHA — коммит, на котором выполняется run.
	SHA string `json:"sha"`
}

// RunContext — распарсенный контекст триггера.
//
// Вычисляется Trigger Evaluator'ом один раз при создании run
// и доступен в выражениях через run.*.
type RunContext struct {
	// Event — вид события ("push", "pull_request", "schedule").
	Event EventKind `json:"event"`

	// Ref — полный ref события.
	Ref string `json:"ref"`

	// SHA — коммит.
	SHA string `json:"sha"`

	// IsPush — true для push-событий.
	IsPush bool `json:"is_push"`

	// IsTagPush — true, если ref — тег.
	IsTagPush bool `json:"is_tag_push"`

	// TagName — имя тега без префикса refs/tags/. Пусто, если не тег.
	TagName string `json:"tag_name,omitempty"`

	// Branch — имя ветки без префикса refs/heads/. Пусто, если тег.
	Branch string `json:"branch,omitempty"`
}
