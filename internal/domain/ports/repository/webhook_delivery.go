package repository

import (
	"context"

	"vton-backend/internal/domain/model"
)

type WebhookDeliveryRepository interface {
	Save(ctx context.Context, tx Tx, delivery *model.WebhookDelivery) error
	// HasProcessed reports whether a delivery for (jobID, status) was
	// already marked processed. This is the durable duplicate check behind
	// the in-memory idempotency cache.
	HasProcessed(ctx context.Context, tx Tx, jobID, status string) (bool, error)
	MarkProcessed(ctx context.Context, tx Tx, deliveryID int64) error
}
