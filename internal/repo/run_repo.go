package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conveyor/internal/domain"
)

// RunRepo — репозиторий для работы с runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create сохраняет новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("marshal run context: %w", err)
	}

	query := `
		INSERT INTO runs (id, pipeline_id, version, status, context, started_at, finished_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.PipelineID,
		run.Version,
		run.Status,
		contextJSON,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, pipeline_id, version, status, context, started_at, finished_at, error, created_at
		FROM runs
		WHERE id = $1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return run, nil
}

// ListByPipelineID возвращает runs pipeline, новые первыми.
func (r *RunRepo) ListByPipelineID(ctx context.Context, pipelineID uuid.UUID, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, pipeline_id, version, status, context, started_at, finished_at, error, created_at
		FROM runs
		WHERE pipeline_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, pipelineID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs by pipeline: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// List возвращает runs с опциональным фильтром по статусу.
func (r *RunRepo) List(ctx context.Context, status domain.RunStatus, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if status == "" {
		query := `
			SELECT id, pipeline_id, version, status, context, started_at, finished_at, error, created_at
			FROM runs
			ORDER BY created_at DESC
			LIMIT $1
		`
		rows, err = r.pool.Query(ctx, query, limit)
	} else {
		query := `
			SELECT id, pipeline_id, version, status, context, started_at, finished_at, error, created_at
			FROM runs
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2
		`
		rows, err = r.pool.Query(ctx, query, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// ListUnfinished возвращает runs в нетерминальных статусах.
// Используется оркестратором: при старте — для восстановления состояния,
// в polling-цикле — как fallback, когда события из MQ потерялись.
func (r *RunRepo) ListUnfinished(ctx context.Context) ([]domain.Run, error) {
	query := `
		SELECT id, pipeline_id, version, status, context, started_at, finished_at, error, created_at
		FROM runs
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, domain.RunStatusPending, domain.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list unfinished runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Update обновляет run.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("marshal run context: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $2, context = $3, started_at = $4, finished_at = $5, error = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		contextJSON,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun сканирует одну строку в domain.Run.
func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var contextJSON []byte
	var errText *string

	err := row.Scan(
		&run.ID,
		&run.PipelineID,
		&run.Version,
		&run.Status,
		&contextJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&errText,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contextJSON, &run.Context); err != nil {
		return nil, fmt.Errorf("unmarshal run context: %w", err)
	}
	if errText != nil {
		run.Error = *errText
	}

	return &run, nil
}

// scanRuns сканирует все строки результата.
func scanRuns(rows pgx.Rows) ([]domain.Run, error) {
	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// nullString — пустая строка как NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
