package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/domain/ports/repository"
)

var _ repository.TaskEventRepository = (*taskEventRepo)(nil)

type taskEventRepo struct {
	pool *pgxpool.Pool
}

func NewTaskEventRepo(pool *pgxpool.Pool) *taskEventRepo {
	return &taskEventRepo{pool: pool}
}

// Append inserts only; task events are immutable once written.
func (r *taskEventRepo) Append(ctx context.Context, tx repository.Tx, ev *model.TaskEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO inference_task_events (task_id, kind, payload, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id;`

	row, err := pickRow(ctx, r.pool, tx, q, ev.TaskID, string(ev.Kind), payload, ev.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&ev.ID); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *taskEventRepo) ListByTask(ctx context.Context, tx repository.Tx, taskID string) ([]*model.TaskEvent, error) {
	const q = `
SELECT id, task_id, kind, payload, created_at
FROM inference_task_events
WHERE task_id=$1
ORDER BY id;`

	rows, err := queryRows(ctx, r.pool, tx, q, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.TaskEvent
	for rows.Next() {
		var ev model.TaskEvent
		var kind string
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.TaskID, &kind, &payload, &ev.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ev.Kind = model.TaskEventKind(kind)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	return out, nil
}
