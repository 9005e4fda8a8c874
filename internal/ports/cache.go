package ports

import (
	"context"
	"time"
)

// Cache is a small key-value store for derived, reconstructible facts such
// as role membership lookups. A ttl of zero keeps the entry until deleted.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
