// Package cache provides the short-lived shared state used to coordinate
// billing work across replicas: Redis when configured, process memory otherwise.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotHeld is returned when releasing a lock whose lease expired or was
// taken over by another holder.
var ErrNotHeld = errors.New("lock not held")

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker grants exclusive, expiring leases on string keys.
type Locker interface {
	// TryAcquire returns ok=false without error when another holder owns key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error)
	Close() error
}

func newToken() string {
	return uuid.NewString()
}
