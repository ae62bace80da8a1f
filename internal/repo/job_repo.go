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

// JobRepo — репозиторий для работы с job instances.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, run_id, job_name, instance_key, matrix, status, payload, outputs, error, started_at, finished_at, created_at`

// Create сохраняет новый job instance.
func (r *JobRepo) Create(ctx context.Context, job *domain.JobInstance) error {
	matrixJSON, payloadJSON, outputsJSON, err := marshalJobJSON(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.RunID,
		job.JobName,
		job.InstanceKey,
		matrixJSON,
		job.Status,
		payloadJSON,
		outputsJSON,
		nullString(job.Error),
		job.StartedAt,
		job.FinishedAt,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// CreateBatch сохраняет все instances run одной транзакцией.
// Вызывается оркестратором при разворачивании графа: либо граф
// материализован целиком, либо никак.
func (r *JobRepo) CreateBatch(ctx context.Context, jobs []*domain.JobInstance) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, job := range jobs {
		matrixJSON, payloadJSON, outputsJSON, err := marshalJobJSON(job)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query,
			job.ID,
			job.RunID,
			job.JobName,
			job.InstanceKey,
			matrixJSON,
			job.Status,
			payloadJSON,
			outputsJSON,
			nullString(job.Error),
			job.StartedAt,
			job.FinishedAt,
			job.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert job %s: %w", job.InstanceKey, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID возвращает job instance по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobInstance, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1
	`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return job, nil
}

// ListByRunID возвращает все instances run в порядке создания.
func (r *JobRepo) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.JobInstance, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE run_id = $1
		ORDER BY created_at ASC, instance_key ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by run: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListPending возвращает диспетчеризованные, но не взятые worker'ом
// instances. Используется polling-циклом worker'а как fallback, когда
// MQ недоступен.
func (r *JobRepo) ListPending(ctx context.Context, limit int) ([]domain.JobInstance, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, domain.JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// Update обновляет job instance.
func (r *JobRepo) Update(ctx context.Context, job *domain.JobInstance) error {
	matrixJSON, payloadJSON, outputsJSON, err := marshalJobJSON(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET matrix = $2, status = $3, payload = $4, outputs = $5, error = $6,
		    started_at = $7, finished_at = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		matrixJSON,
		job.Status,
		payloadJSON,
		outputsJSON,
		nullString(job.Error),
		job.StartedAt,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimRunning атомарно переводит PENDING instance в RUNNING.
// Возвращает ErrInvalidState, если instance уже взят другим worker'ом.
func (r *JobRepo) ClaimRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3
	`
	result, err := r.pool.Exec(ctx, query, id, domain.JobStatusRunning, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// marshalJobJSON — JSONB-поля instance одним вызовом.
func marshalJobJSON(job *domain.JobInstance) (matrix, payload, outputs []byte, err error) {
	if job.Matrix != nil {
		matrix, err = json.Marshal(job.Matrix)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal matrix: %w", err)
		}
	}
	if job.Payload != nil {
		payload, err = json.Marshal(job.Payload)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal payload: %w", err)
		}
	}
	if job.Outputs != nil {
		outputs, err = json.Marshal(job.Outputs)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal outputs: %w", err)
		}
	}
	return matrix, payload, outputs, nil
}

// scanJob сканирует одну строку в domain.JobInstance.
func scanJob(row rowScanner) (*domain.JobInstance, error) {
	var job domain.JobInstance
	var matrixJSON, payloadJSON, outputsJSON []byte
	var errText *string

	err := row.Scan(
		&job.ID,
		&job.RunID,
		&job.JobName,
		&job.InstanceKey,
		&matrixJSON,
		&job.Status,
		&payloadJSON,
		&outputsJSON,
		&errText,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(matrixJSON) > 0 {
		if err := json.Unmarshal(matrixJSON, &job.Matrix); err != nil {
			return nil, fmt.Errorf("unmarshal matrix: %w", err)
		}
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if len(outputsJSON) > 0 {
		if err := json.Unmarshal(outputsJSON, &job.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	if errText != nil {
		job.Error = *errText
	}

	return &job, nil
}

// scanJobs сканирует все строки результата.
func scanJobs(rows pgx.Rows) ([]domain.JobInstance, error) {
	var jobs []domain.JobInstance
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
