package cache

import (
	"context"
	"time"
)

// Backend stores encoded entries with an absolute expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
