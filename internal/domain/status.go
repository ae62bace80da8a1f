package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
type RunStatus string

const (
	// RunStatusPending — run создан, оркестратор его ещё не подхватил.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все jobs завершились успешно или были пропущены.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы один job упал.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён пользователем.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus — статус выполнения job instance.
//
// Жизненный цикл:
//
//	BLOCKED → PENDING → RUNNING → SUCCEEDED
//	                            ↘ FAILED
//	(из любого нетерминального) → SKIPPED
//
// BLOCKED — ждёт терминальности needs. PENDING — зависимости разрешены,
// instance поставлен в очередь worker'ам. SKIPPED — условие вернуло false,
// зависимость упала/пропущена либо run отменён.
type JobStatus string

const (
	// JobStatusBlocked — ожидает завершения зависимостей.
	JobStatusBlocked JobStatus = "BLOCKED"

	// JobStatusPending — готов к выполнению, в очереди.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusRunning — выполняется worker'ом.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusSucceeded — все шаги завершились успешно.
	JobStatusSucceeded JobStatus = "SUCCEEDED"

	// JobStatusFailed — шаг вернул ненулевой exit status.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusSkipped — job не выполнялся. Не является ошибкой.
	JobStatusSkipped JobStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusSkipped:
		return true
	default:
		return false
	}
}
