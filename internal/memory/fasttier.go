// Package memory keeps per-session conversation history in a fast expiring
// tier, repairing it from the durable store whenever the fast copy is unusable.
package memory

import (
	"context"
	"time"
)

// FastTier is an expiring key/value cache. Get reports ok=false on a miss;
// a miss is not an error.
type FastTier interface {
	Get(ctx context.Context, key string) (blob []byte, ok bool, err error)
	Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
