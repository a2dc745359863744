package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vton-backend/internal/domain/model"
	"vton-backend/internal/usecase"
)

var _ usecase.StatusCache = (*StatusCache)(nil)

// StatusCache mirrors the latest task status into redis with a TTL, so
// the poll handler (and, later, sibling processes) can serve a terminal
// status without a provider round-trip.
type StatusCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewStatusCache(client RedisClient, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

func (c *StatusCache) GetStatus(ctx context.Context, taskID string) (model.TaskStatus, bool, error) {
	val, err := c.client.Get(ctx, statusKey(taskID))
	if errors.Is(err, ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.TaskStatus(val), true, nil
}

func (c *StatusCache) SetStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	return c.client.Set(ctx, statusKey(taskID), string(status), c.ttl)
}
