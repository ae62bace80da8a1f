package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// Scheduler синтезирует schedule-события для pipelines с cron-триггерами.
type Scheduler struct {
	pipelineRepo *repo.PipelineRepo
	runRepo      *repo.RunRepo
	publisher    *mq.Publisher
	logger       *slog.Logger

	// defaultRef — ref, с которым создаются schedule-runs.
	defaultRef string

	// lastTick — время предыдущего тика. Cron срабатывает, если его
	// очередное время попадает в окно (lastTick, now].
	lastTick time.Time
	mu       sync.Mutex
}

// Config — конфигурация Scheduler.
type Config struct {
	PipelineRepo *repo.PipelineRepo
	RunRepo      *repo.RunRepo
	Publisher    *mq.Publisher
	Logger       *slog.Logger

	// DefaultRef — ветка для schedule-runs (default: "main").
	DefaultRef string
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	defaultRef := cfg.DefaultRef
	if defaultRef == "" {
		defaultRef = "main"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		pipelineRepo: cfg.PipelineRepo,
		runRepo:      cfg.RunRepo,
		publisher:    cfg.Publisher,
		logger:       logger,
		defaultRef:   defaultRef,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Берёт активные pipelines и их последние версии
// 2. Для каждого schedule-триггера проверяет, попало ли очередное
//    cron-время в окно с прошлого тика
// 3. Для сработавших создаёт runs и публикует run.pending
//
// Первый тик только фиксирует точку отсчёта — иначе при старте
// сработали бы все cron'ы разом. Ошибки одного pipeline не блокируют
// обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	s.mu.Lock()
	last := s.lastTick
	s.lastTick = now
	s.mu.Unlock()

	if last.IsZero() {
		return nil
	}

	pipelines, err := s.pipelineRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active pipelines: %w", err)
	}

	var created int
	for i := range pipelines {
		p := &pipelines[i]

		n, err := s.processPipeline(ctx, p, last, now)
		if err != nil {
			s.logger.Error("failed to process pipeline schedules",
				"pipeline_id", p.ID,
				"pipeline_name", p.Name,
				"error", err,
			)
			continue
		}
		created += n
	}

	if created > 0 {
		s.logger.Info("scheduler tick completed",
			"pipelines", len(pipelines),
			"runs_created", created,
		)
	}

	return nil
}

// processPipeline проверяет cron-триггеры одного pipeline.
// Возвращает количество созданных runs.
func (s *Scheduler) processPipeline(ctx context.Context, p *domain.Pipeline, last, now time.Time) (int, error) {
	version, err := s.pipelineRepo.GetLatestVersion(ctx, p.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Pipeline без версий — нечего запускать
			return 0, nil
		}
		return 0, fmt.Errorf("get latest version: %w", err)
	}

	var created int
	for _, sched := range version.Spec.On.Schedule {
		next, err := NextFire(sched, last)
		if err != nil {
			s.logger.Warn("invalid cron expression, skipping",
				"pipeline_id", p.ID,
				"cron", sched.Cron,
				"error", err,
			)
			continue
		}

		if next.After(now) {
			continue
		}

		if err := s.createRun(ctx, p, version, now); err != nil {
			return created, fmt.Errorf("create scheduled run: %w", err)
		}
		created++
	}

	return created, nil
}

// createRun создаёт run для сработавшего schedule-триггера.
func (s *Scheduler) createRun(ctx context.Context, p *domain.Pipeline, version *domain.PipelineVersion, now time.Time) error {
	event := domain.Event{
		Kind: domain.EventSchedule,
		Ref:  s.defaultRef,
	}

	ok, runCtx := trigger.Evaluate(&version.Spec.On, event)
	if !ok {
		return nil
	}

	run := &domain.Run{
		ID:         uuid.New(),
		PipelineID: p.ID,
		Version:    version.Version,
		Status:     domain.RunStatusPending,
		Context:    runCtx,
		CreatedAt:  now,
	}

	if err := s.runRepo.Create(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	s.logger.Info("created scheduled run",
		"run_id", run.ID,
		"pipeline_id", p.ID,
		"pipeline_name", p.Name,
		"version", version.Version,
	)

	if s.publisher != nil {
		if err := s.publisher.PublishRunPending(ctx, run.ID); err != nil {
			// Не фатальная ошибка — run уже создан в БД,
			// Orchestrator заберёт его через polling
			s.logger.Warn("failed to publish run.pending",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	return nil
}
