package redisadapter

import (
	"context"
	"errors"
	"time"

	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/ports"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Locker hands out Redis-backed leases shared by every worker replica.
type Locker struct {
	client *redislock.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: redislock.New(client)}
}

func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domainerrors.ErrLeaseNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lease{lock: lock}, nil
}

type lease struct {
	lock *redislock.Lock
}

func (l lease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
