package lock

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Lock fake for tests and single-instance
// deployments, backed by a mutex-guarded expiry map.
type Memory struct {
	mu      sync.Mutex
	holders map[string]time.Time // key -> expiry
}

// NewMemory returns an empty Memory lock.
func NewMemory() *Memory {
	return &Memory{holders: map[string]time.Time{}}
}

func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expiry, held := m.holders[key]; held && time.Now().Before(expiry) {
		return false, nil
	}
	m.holders[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *Memory) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holders, key)
	return nil
}
