package adapter

import (
	"context"
	"time"
)

// ObjectStorage is the port for the image object store.
type ObjectStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}
