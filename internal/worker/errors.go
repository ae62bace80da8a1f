package worker

import "errors"

// Ошибки воркера.
var (
	// ErrJobNotFound — job instance не найден в БД.
	ErrJobNotFound = errors.New("job instance not found")

	// ErrJobNotPending — instance не в статусе PENDING.
	ErrJobNotPending = errors.New("job instance is not in PENDING status")

	// ErrMissingPayload — instance диспетчеризован без payload.
	ErrMissingPayload = errors.New("job instance has no payload")

	// ErrStepFailed — шаг завершился с ненулевым exit status.
	ErrStepFailed = errors.New("step failed")

	// ErrExecutionTimeout — выполнение job превысило таймаут.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
