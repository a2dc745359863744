package repository

import (
	"context"

	"vton-backend/internal/domain/model"
)

type TaskRepository interface {
	Save(ctx context.Context, tx Tx, task *model.InferenceTask) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.InferenceTask, error)
	FindByJobID(ctx context.Context, tx Tx, jobID string) (*model.InferenceTask, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.InferenceTask, error)
}
