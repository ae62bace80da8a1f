package api

import (
	"log/slog"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	pipelineRepo *repo.PipelineRepo
	runRepo      *repo.RunRepo
	jobRepo      *repo.JobRepo
	publisher    *mq.Publisher
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	PipelineRepo *repo.PipelineRepo
	RunRepo      *repo.RunRepo
	JobRepo      *repo.JobRepo
	Publisher    *mq.Publisher
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		pipelineRepo: cfg.PipelineRepo,
		runRepo:      cfg.RunRepo,
		jobRepo:      cfg.JobRepo,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger,
	}
}
