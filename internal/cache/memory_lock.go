package cache

import (
	"context"
	"sync"
	"time"
)

// MemorySubmitLock is a process-local SubmitLock for single-instance
// deployments and tests. TTL is ignored; locks are held until released.
type MemorySubmitLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemorySubmitLock() *MemorySubmitLock {
	return &MemorySubmitLock{held: make(map[string]struct{})}
}

func (l *MemorySubmitLock) Acquire(ctx context.Context, examID uint, studentID string, ttl time.Duration) (bool, error) {
	key := submitLockKey(examID, studentID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *MemorySubmitLock) Release(ctx context.Context, examID uint, studentID string) error {
	key := submitLockKey(examID, studentID)

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
