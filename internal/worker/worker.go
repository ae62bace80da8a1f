package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 20
	defaultPrefetch     = 5
)

// Worker выполняет job instances.
//
// Worker — stateless компонент системы, который:
//   - Получает instances из очереди RabbitMQ (event-driven)
//   - Периодически проверяет pending instances в БД (polling fallback)
//   - Выполняет шаги job последовательно, рендеря ${{ }}-выражения
//   - Подставляет секреты из локального источника (в payload их нет)
//   - Публикует результат обратно в очередь jobs.completed
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	// Repositories
	jobRepo *repo.JobRepo

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection

	// Runner registry
	registry *actions.Registry

	// Secrets — read-only источник секретов этого worker'а.
	secrets engine.SecretSource

	// Consumer
	consumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Repositories
	JobRepo *repo.JobRepo

	// MQ
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Registry — реестр runner'ов (опционально; если nil — NewRegistry())
	Registry *actions.Registry

	// Secrets — источник секретов (опционально).
	Secrets engine.SecretSource

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество instances за один poll (default: 20)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = actions.NewRegistry()
	}

	return &Worker{
		jobRepo:      cfg.JobRepo,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		registry:     registry,
		secrets:      cfg.Secrets,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для jobs.ready
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueJobsReady),
		Handler:  w.handleJobReady,
		Prefetch: defaultPrefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("job consumer error", "error", err)
		}
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем instances,
	// диспетчеризованные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	jobs, err := w.jobRepo.ListPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	w.logger.Debug("poll found pending jobs", "count", len(jobs))

	for i := range jobs {
		job := &jobs[i]

		if err := w.processJob(ctx, job.ID); err != nil {
			w.logger.Error("failed to process job from poll",
				"job_id", job.ID,
				"error", err,
			)
		}
	}
}
