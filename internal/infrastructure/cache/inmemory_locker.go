package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = 5 * time.Minute

// InMemoryLocker implements Locker within a single process. Replicas do not
// see each other's leases.
type InMemoryLocker struct {
	mu    sync.Mutex
	items *gocache.Cache
}

// NewInMemoryLocker creates an in-memory locker whose expired leases are
// swept periodically.
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{items: gocache.New(gocache.NoExpiration, defaultCleanupInterval)}
}

// TryAcquire implements Locker
func (l *InMemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := newToken()
	// Add fails while an unexpired item exists under key.
	if err := l.items.Add(key, token, ttl); err != nil {
		return nil, false, nil
	}
	return &memoryLease{locker: l, key: key, token: token}, true, nil
}

// Close implements Locker
func (l *InMemoryLocker) Close() error {
	l.items.Flush()
	return nil
}

type memoryLease struct {
	locker *InMemoryLocker
	key    string
	token  string
}

func (m *memoryLease) Key() string { return m.key }

func (m *memoryLease) Release(context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	current, ok := m.locker.items.Get(m.key)
	if !ok || current.(string) != m.token {
		return ErrNotHeld
	}
	m.locker.items.Delete(m.key)
	return nil
}

var _ Locker = (*InMemoryLocker)(nil)
