package interfaces

import (
	"context"
	"time"
)

// CacheService is the short-TTL dedup accelerator in front of the store.
// It is never the source of truth: a miss followed by a store conflict is a
// normal outcome.
type CacheService interface {
	Has(ctx context.Context, key string) (bool, error)
	HasMulti(ctx context.Context, keys []string) (map[string]bool, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
}
