package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrPipelineNotFound — pipeline или его версия не найдены.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrInvalidPipelineSpec — спецификация не прошла валидацию.
	ErrInvalidPipelineSpec = errors.New("invalid pipeline spec")

	// ErrRunAlreadyActive — run уже обрабатывается.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrRunNotPending — run не в статусе PENDING.
	ErrRunNotPending = errors.New("run is not in PENDING status")

	// ErrJobNotFound — job instance не найден.
	ErrJobNotFound = errors.New("job instance not found")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
