package ports

import (
	"context"
	"time"
)

// Store caches derived session credentials.
// Get returns core.ErrCacheMiss for absent or expired keys.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
