// Package locks provides advisory, best-effort keyed locks. They exist to
// reduce duplicate expensive work (AI calls for the same key), not to
// guarantee mutual exclusion.
package locks

import (
	"context"
	"time"
)

// KeyedLocker acquires short-lived advisory locks by key. TryAcquire never
// blocks: it reports whether the lock was obtained and returns a release
// function that is safe to call exactly once.
type KeyedLocker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (acquired bool, release func(), err error)
}
