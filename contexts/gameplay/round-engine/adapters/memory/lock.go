package memory

import (
	"context"
	"sync"
	"time"

	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// LockManager is a keyed advisory mutex for single-process wiring. Acquire
// waits up to the caller's timeout for the key to free and then fails with
// ErrLockTimeout instead of queueing indefinitely.
type LockManager struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]chan struct{})}
}

func (m *LockManager) Acquire(ctx context.Context, key string, timeout time.Duration) (ports.LockGuard, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		m.mu.Lock()
		waiter, taken := m.held[key]
		if !taken {
			m.held[key] = make(chan struct{})
			m.mu.Unlock()
			return &lockGuard{manager: m, key: key}, nil
		}
		m.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, domainerrors.ErrLockTimeout
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-waiter:
			timer.Stop()
		case <-timer.C:
			return nil, domainerrors.ErrLockTimeout
		}
	}
}

type lockGuard struct {
	manager *LockManager
	key     string
	once    sync.Once
}

func (g *lockGuard) Release() {
	g.once.Do(func() {
		g.manager.mu.Lock()
		waiter := g.manager.held[g.key]
		delete(g.manager.held, g.key)
		g.manager.mu.Unlock()
		if waiter != nil {
			close(waiter)
		}
	})
}
