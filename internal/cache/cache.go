// Package cache defines the external key-value backend shared by the fetch
// cache and the call-signature memo cache.
package cache

import (
	"context"
	"time"
)

// Backend is an optional external store. Implementations return found=false
// with a nil error for a missing key; any non-nil error is treated by callers
// as a miss.
type Backend interface {
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	SetEx(ctx context.Context, key string, ttl time.Duration, val []byte) error
}
