package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
)

// Orchestrator управляет выполнением runs.
//
// Orchestrator — центральный компонент системы, который:
//   - Получает новые runs из очереди RabbitMQ (event-driven)
//   - Периодически проверяет незавершённые runs в БД (polling fallback)
//   - Строит граф jobs и разворачивает matrix для каждого run
//   - Диспетчеризует instances, когда их needs терминальны
//   - Вычисляет условия jobs и каскадно пропускает downstream при падениях
//   - Финализирует runs (SUCCEEDED/FAILED/CANCELLED)
type Orchestrator struct {
	// Repositories
	runRepo      *repo.RunRepo
	jobRepo      *repo.JobRepo
	pipelineRepo *repo.PipelineRepo

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection

	// Active runs — runs в процессе выполнения (runID → state)
	activeRuns map[uuid.UUID]*RunState
	mu         sync.RWMutex

	// Consumers
	runConsumer    *mq.Consumer
	cancelConsumer *mq.Consumer
	jobConsumer    *mq.Consumer

	// Configuration
	pollInterval time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Repositories
	RunRepo      *repo.RunRepo
	JobRepo      *repo.JobRepo
	PipelineRepo *repo.PipelineRepo

	// MQ
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// PollInterval — интервал polling fallback (default: 10s)
	PollInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		runRepo:      cfg.RunRepo,
		jobRepo:      cfg.JobRepo,
		pipelineRepo: cfg.PipelineRepo,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		activeRuns:   make(map[uuid.UUID]*RunState),
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Consumer для runs.pending
//   - Consumer для runs.cancelled
//   - Consumer для jobs.completed
//   - Polling горутину для fallback
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
	)

	o.runConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueRunsPending),
		Handler:  o.handleRunPending,
		Prefetch: 10,
	})

	o.cancelConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueRunsCancelled),
		Handler:  o.handleRunCancelled,
		Prefetch: 10,
	})

	o.jobConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueJobsCompleted),
		Handler:  o.handleJobCompleted,
		Prefetch: 10,
	})

	for _, consumer := range []*mq.Consumer{o.runConsumer, o.cancelConsumer, o.jobConsumer} {
		consumer := consumer
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	for _, consumer := range []*mq.Consumer{o.runConsumer, o.cancelConsumer, o.jobConsumer} {
		if consumer != nil {
			consumer.Stop()
		}
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped",
		"active_runs", len(o.activeRuns),
	)
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// pollLoop — цикл polling для fallback.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте: подхватываем runs,
	// созданные или осиротевшие пока оркестратор был выключен
	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
//
// PENDING runs запускаются с нуля; RUNNING runs, которых нет в памяти
// (после рестарта), восстанавливаются из БД и продвигаются.
func (o *Orchestrator) poll(ctx context.Context) {
	runs, err := o.runRepo.ListUnfinished(ctx)
	if err != nil {
		o.logger.Error("failed to list unfinished runs", "error", err)
		return
	}

	for i := range runs {
		run := &runs[i]

		if o.isRunActive(run.ID) {
			continue
		}

		switch run.Status {
		case domain.RunStatusPending:
			if err := o.processRun(ctx, run.ID); err != nil {
				o.logger.Error("failed to process run from poll",
					"run_id", run.ID,
					"error", err,
				)
			}

		case domain.RunStatusRunning:
			state, err := o.restoreRunState(ctx, run.ID)
			if err != nil {
				o.logger.Error("failed to restore run from poll",
					"run_id", run.ID,
					"error", err,
				)
				continue
			}
			if state == nil {
				continue
			}
			if err := o.advance(ctx, state); err != nil {
				o.logger.Error("failed to advance restored run",
					"run_id", run.ID,
					"error", err,
				)
			}
		}
	}
}

// isRunActive проверяет, находится ли run в обработке.
func (o *Orchestrator) isRunActive(runID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.activeRuns[runID]
	return exists
}

// getActiveRun возвращает активный RunState.
func (o *Orchestrator) getActiveRun(runID uuid.UUID) *RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.activeRuns[runID]
}

// addActiveRun добавляет run в активные.
func (o *Orchestrator) addActiveRun(state *RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.activeRuns[state.RunID()]; exists {
		return ErrRunAlreadyActive
	}

	o.activeRuns[state.RunID()] = state
	telemetry.ActiveRuns.Set(float64(len(o.activeRuns)))
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
	telemetry.ActiveRuns.Set(float64(len(o.activeRuns)))
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// GetActiveRunStats возвращает статистику по активному run.
func (o *Orchestrator) GetActiveRunStats(runID uuid.UUID) (RunStats, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, exists := o.activeRuns[runID]
	if !exists {
		return RunStats{}, false
	}

	return state.Stats(), true
}
