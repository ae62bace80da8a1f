package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobInstance — один runtime-экземпляр job внутри run.
//
// Для job без matrix создаётся ровно один instance с InstanceKey,
// равным имени job. Для matrix-job создаётся instance на каждую
// комбинацию осей; родительский job считается успешным, только если
// успешны все его instances (fan-out / fan-in).
//
// Instance создаётся оркестратором и выполняется worker'ом.
type JobInstance struct {
	// ID — уникальный идентификатор instance.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// JobName — имя job-шаблона из PipelineSpec (ключ в needs).
	JobName string `json:"job_name"`

	// InstanceKey — уникальный в рамках run ключ instance.
	// Для matrix: "build (linux, x86_64-unknown-linux-gnu)".
	InstanceKey string `json:"instance_key"`

	// Matrix — значения осей для этого instance. Nil без matrix.
	Matrix map[string]string `json:"matrix,omitempty"`

	// Status — текущий статус instance.
	Status JobStatus `json:"status"`

	// Payload — всё, что нужно worker'у для выполнения:
	// определение job и снимок контекста на момент диспетчеризации.
	Payload *JobPayload `json:"payload,omitempty"`

	// Outputs — выходы job, опубликованные по завершении.
	// Заполняются worker'ом из JobDef.Outputs.
	Outputs map[string]string `json:"outputs,omitempty"`

	// Error — текст ошибки для FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания instance.
	CreatedAt time.Time `json:"created_at"`
}

// JobPayload — снимок данных для выполнения instance worker'ом.
//
// Контекст снимается оркестратором в момент диспетчеризации — когда все
// needs терминальны — поэтому worker всегда видит финальные upstream
// outputs. Секреты в payload не попадают: worker подставляет их сам.
type JobPayload struct {
	// Def — определение job из PipelineSpec.
	Def JobDef `json:"def"`

	// Run — контекст триггера.
	Run RunContext `json:"run"`

	// Needs — результаты и outputs зависимостей (по имени job).
	Needs map[string]NeedResult `json:"needs,omitempty"`

	// Matrix — значения осей для этого instance.
	Matrix map[string]string `json:"matrix,omitempty"`

	// Env — слитые переменные окружения уровней pipeline и job.
	Env map[string]string `json:"env,omitempty"`
}

// NeedResult — результат upstream job, видимый downstream'у.
type NeedResult struct {
	// Result — терминальный статус: "SUCCEEDED", "FAILED", "SKIPPED".
	Result string `json:"result"`

	// Outputs — опубликованные outputs job.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Duration возвращает продолжительность выполнения.
func (j *JobInstance) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// IsFinished возвращает true, если instance завершён.
func (j *JobInstance) IsFinished() bool {
	return j.Status.IsTerminal()
}

// MarkPending переводит instance в статус PENDING (готов, в очереди).
func (j *JobInstance) MarkPending(payload *JobPayload) {
	j.Status = JobStatusPending
	j.Payload = payload
}

// MarkRunning переводит instance в статус RUNNING.
func (j *JobInstance) MarkRunning() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// MarkSucceeded переводит instance в статус SUCCEEDED с outputs.
func (j *JobInstance) MarkSucceeded(outputs map[string]string) {
	now := time.Now()
	j.Status = JobStatusSucceeded
	j.FinishedAt = &now
	j.Outputs = outputs
}

// MarkFailed переводит instance в статус FAILED с ошибкой.
func (j *JobInstance) MarkFailed(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.FinishedAt = &now
	j.Error = err
}

// MarkSkipped переводит instance в статус SKIPPED.
// reason — причина пропуска (условие, упавшая зависимость, отмена).
func (j *JobInstance) MarkSkipped(reason string) {
	now := time.Now()
	j.Status = JobStatusSkipped
	j.FinishedAt = &now
	j.Error = reason
}
