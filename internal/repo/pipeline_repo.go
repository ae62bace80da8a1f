package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conveyor/internal/domain"
)

// PipelineRepo — репозиторий для работы с pipelines и pipeline_versions.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт новый PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

// --- Pipeline CRUD ---

// Create регистрирует новый pipeline.
func (r *PipelineRepo) Create(ctx context.Context, p *domain.Pipeline) error {
	query := `
		INSERT INTO pipelines (id, name, is_active, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.IsActive,
		p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

// GetByID возвращает pipeline по ID.
func (r *PipelineRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	query := `
		SELECT id, name, is_active, created_at
		FROM pipelines
		WHERE id = $1
	`
	var p domain.Pipeline
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.IsActive,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline by id: %w", err)
	}
	return &p, nil
}

// GetByName возвращает pipeline по имени.
func (r *PipelineRepo) GetByName(ctx context.Context, name string) (*domain.Pipeline, error) {
	query := `
		SELECT id, name, is_active, created_at
		FROM pipelines
		WHERE name = $1
	`
	var p domain.Pipeline
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&p.ID,
		&p.Name,
		&p.IsActive,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline by name: %w", err)
	}
	return &p, nil
}

// List возвращает список всех pipelines.
func (r *PipelineRepo) List(ctx context.Context) ([]domain.Pipeline, error) {
	query := `
		SELECT id, name, is_active, created_at
		FROM pipelines
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []domain.Pipeline
	for rows.Next() {
		var p domain.Pipeline
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.IsActive,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

// ListActive возвращает только активные pipelines.
// Используется при диспетчеризации событий и планировщиком.
func (r *PipelineRepo) ListActive(ctx context.Context) ([]domain.Pipeline, error) {
	query := `
		SELECT id, name, is_active, created_at
		FROM pipelines
		WHERE is_active = TRUE
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []domain.Pipeline
	for rows.Next() {
		var p domain.Pipeline
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.IsActive,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

// Update обновляет pipeline.
func (r *PipelineRepo) Update(ctx context.Context, p *domain.Pipeline) error {
	query := `
		UPDATE pipelines
		SET name = $2, is_active = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.IsActive)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет pipeline (каскадно удалит versions, runs и jobs).
func (r *PipelineRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM pipelines WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- PipelineVersion CRUD ---

// CreateVersion создаёт новую версию pipeline.
// Версия автоматически инкрементируется.
func (r *PipelineRepo) CreateVersion(ctx context.Context, pipelineID uuid.UUID, spec domain.PipelineSpec) (*domain.PipelineVersion, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal spec: %w", err)
	}

	var nextVersion int
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM pipeline_versions
		WHERE pipeline_id = $1
	`, pipelineID).Scan(&nextVersion)
	if err != nil {
		return nil, fmt.Errorf("get next version: %w", err)
	}

	var version domain.PipelineVersion
	err = r.pool.QueryRow(ctx, `
		INSERT INTO pipeline_versions (pipeline_id, version, spec, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING pipeline_id, version, spec, created_at
	`, pipelineID, nextVersion, specJSON).Scan(
		&version.PipelineID,
		&version.Version,
		&specJSON,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline version: %w", err)
	}

	if err := json.Unmarshal(specJSON, &version.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}

	return &version, nil
}

// GetVersion возвращает конкретную версию pipeline.
func (r *PipelineRepo) GetVersion(ctx context.Context, pipelineID uuid.UUID, version int) (*domain.PipelineVersion, error) {
	query := `
		SELECT pipeline_id, version, spec, created_at
		FROM pipeline_versions
		WHERE pipeline_id = $1 AND version = $2
	`
	var pv domain.PipelineVersion
	var specJSON []byte
	err := r.pool.QueryRow(ctx, query, pipelineID, version).Scan(
		&pv.PipelineID,
		&pv.Version,
		&specJSON,
		&pv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline version: %w", err)
	}

	if err := json.Unmarshal(specJSON, &pv.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}

	return &pv, nil
}

// GetLatestVersion возвращает последнюю версию pipeline.
func (r *PipelineRepo) GetLatestVersion(ctx context.Context, pipelineID uuid.UUID) (*domain.PipelineVersion, error) {
	query := `
		SELECT pipeline_id, version, spec, created_at
		FROM pipeline_versions
		WHERE pipeline_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	var pv domain.PipelineVersion
	var specJSON []byte
	err := r.pool.QueryRow(ctx, query, pipelineID).Scan(
		&pv.PipelineID,
		&pv.Version,
		&specJSON,
		&pv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest pipeline version: %w", err)
	}

	if err := json.Unmarshal(specJSON, &pv.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}

	return &pv, nil
}

// ListVersions возвращает все версии pipeline.
func (r *PipelineRepo) ListVersions(ctx context.Context, pipelineID uuid.UUID) ([]domain.PipelineVersion, error) {
	query := `
		SELECT pipeline_id, version, spec, created_at
		FROM pipeline_versions
		WHERE pipeline_id = $1
		ORDER BY version DESC
	`
	rows, err := r.pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list pipeline versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.PipelineVersion
	for rows.Next() {
		var pv domain.PipelineVersion
		var specJSON []byte
		if err := rows.Scan(
			&pv.PipelineID,
			&pv.Version,
			&specJSON,
			&pv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pipeline version: %w", err)
		}

		if err := json.Unmarshal(specJSON, &pv.Spec); err != nil {
			return nil, fmt.Errorf("unmarshal spec: %w", err)
		}

		versions = append(versions, pv)
	}
	return versions, rows.Err()
}
