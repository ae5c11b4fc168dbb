package memory

import (
	"context"
	"sync"
	"time"

	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

// Locker is a process-local LeaseLocker with expiring leases.
type Locker struct {
	mu     sync.Mutex
	leases map[string]time.Time
}

func NewLocker() *Locker {
	return &Locker{leases: make(map[string]time.Time)}
}

func (l *Locker) Obtain(_ context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expiresAt, held := l.leases[key]; held && expiresAt.After(now) {
		return nil, domainerrors.ErrLeaseNotObtained
	}
	expiresAt := now.Add(ttl)
	l.leases[key] = expiresAt
	return &lease{locker: l, key: key, expiresAt: expiresAt}, nil
}

type lease struct {
	locker    *Locker
	key       string
	expiresAt time.Time
}

func (l *lease) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if current, ok := l.locker.leases[l.key]; ok && current.Equal(l.expiresAt) {
		delete(l.locker.leases, l.key)
	}
	return nil
}
