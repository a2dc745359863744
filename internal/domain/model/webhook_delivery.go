package model

import "time"

// WebhookDelivery records a raw inbound provider callback. It is the durable
// duplicate-detection fallback when the in-memory idempotency cache is cold
// (e.g. after a restart).
type WebhookDelivery struct {
	ID          int64
	TaskID      string
	JobID       string
	Status      string
	Payload     []byte
	Processed   bool
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

func NewWebhookDelivery(taskID, jobID, status string, payload []byte) *WebhookDelivery {
	return &WebhookDelivery{
		TaskID:     taskID,
		JobID:      jobID,
		Status:     status,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

// MarkProcessed flips the processed flag once. Further calls are no-ops.
func (d *WebhookDelivery) MarkProcessed() {
	if d.Processed {
		return
	}
	now := time.Now()
	d.Processed = true
	d.ProcessedAt = &now
}
