package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/domain/ports/repository"
)

var _ repository.TaskRepository = (*taskRepo)(nil)

type taskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *taskRepo {
	return &taskRepo{pool: pool}
}

const taskColumns = `id, user_id, provider, job_id, status, progress, person_key, garment_keys, mask_key, result_key, error_message, created_at, updated_at, completed_at, cancelled_at`

func (r *taskRepo) Save(ctx context.Context, tx repository.Tx, task *model.InferenceTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.UpdatedAt = time.Now()

	const q = `
INSERT INTO inference_tasks (` + taskColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  provider = EXCLUDED.provider,
  job_id = EXCLUDED.job_id,
  status = EXCLUDED.status,
  progress = EXCLUDED.progress,
  result_key = EXCLUDED.result_key,
  error_message = EXCLUDED.error_message,
  updated_at = EXCLUDED.updated_at,
  completed_at = EXCLUDED.completed_at,
  cancelled_at = EXCLUDED.cancelled_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		task.ID, task.UserID, task.Provider, task.JobID, string(task.Status), task.Progress,
		task.PersonKey, task.GarmentKeys, task.MaskKey, task.ResultKey, task.ErrorMessage,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt, task.CancelledAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *taskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.InferenceTask, error) {
	q := `SELECT ` + taskColumns + ` FROM inference_tasks WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.findOne(ctx, tx, q+";", id)
}

func (r *taskRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.InferenceTask, error) {
	q := `SELECT ` + taskColumns + ` FROM inference_tasks WHERE job_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.findOne(ctx, tx, q+" LIMIT 1;", jobID)
}

func (r *taskRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.InferenceTask, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return task, nil
}

func (r *taskRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.InferenceTask, error) {
	const q = `SELECT ` + taskColumns + ` FROM inference_tasks WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.InferenceTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (*model.InferenceTask, error) {
	var t model.InferenceTask
	var status string
	err := row.Scan(
		&t.ID, &t.UserID, &t.Provider, &t.JobID, &status, &t.Progress,
		&t.PersonKey, &t.GarmentKeys, &t.MaskKey, &t.ResultKey, &t.ErrorMessage,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &t.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	return &t, nil
}
