package repository

import (
	"context"

	"vton-backend/internal/domain/model"
)

// TaskEventRepository is append-only; events are never updated or deleted.
type TaskEventRepository interface {
	Append(ctx context.Context, tx Tx, event *model.TaskEvent) error
	ListByTask(ctx context.Context, tx Tx, taskID string) ([]*model.TaskEvent, error)
}
