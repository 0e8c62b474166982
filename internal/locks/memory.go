package locks

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a process-local KeyedLocker for tests and single-instance
// deployments. TTLs are ignored; locks live until released.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates an in-memory advisory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// TryAcquire attempts to take the lock without blocking.
func (l *MemoryLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (bool, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return false, nil, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, key)
		})
	}

	return true, release, nil
}

var _ KeyedLocker = (*MemoryLocker)(nil)
