package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/domain/ports/repository"
)

var _ repository.WebhookDeliveryRepository = (*webhookDeliveryRepo)(nil)

type webhookDeliveryRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookDeliveryRepo(pool *pgxpool.Pool) *webhookDeliveryRepo {
	return &webhookDeliveryRepo{pool: pool}
}

func (r *webhookDeliveryRepo) Save(ctx context.Context, tx repository.Tx, d *model.WebhookDelivery) error {
	const q = `
INSERT INTO webhook_deliveries (task_id, job_id, status, payload, processed, received_at, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id;`

	row, err := pickRow(ctx, r.pool, tx, q, d.TaskID, d.JobID, d.Status, d.Payload, d.Processed, d.ReceivedAt, d.ProcessedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&d.ID); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *webhookDeliveryRepo) HasProcessed(ctx context.Context, tx repository.Tx, jobID, status string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM webhook_deliveries WHERE job_id=$1 AND status=$2 AND processed);`
	row, err := pickRow(ctx, r.pool, tx, q, jobID, status)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *webhookDeliveryRepo) MarkProcessed(ctx context.Context, tx repository.Tx, deliveryID int64) error {
	const q = `UPDATE webhook_deliveries SET processed=TRUE, processed_at=NOW() WHERE id=$1 AND NOT processed;`
	_, err := execSQL(ctx, r.pool, tx, q, deliveryID)
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}
