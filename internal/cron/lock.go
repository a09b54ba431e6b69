package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLeaseTTL = 5 * time.Minute

// Release gives back a lease taken by TryAcquire.
type Release func(ctx context.Context) error

// Lease keeps a single worker replica running a cycle. TryAcquire never
// blocks: a nil Release with a nil error means another replica holds it.
type Lease interface {
	TryAcquire(ctx context.Context) (Release, error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, owner string) (bool, error)
}

// RedisLease is a SET NX PX key holding a per-acquisition token. Release
// only deletes the key while it still carries that token, so a lease that
// expired and moved to another replica is left alone.
type RedisLease struct {
	store leaseStore
	key   string
	ttl   time.Duration
}

func NewRedisLease(store leaseStore, key string, ttl time.Duration) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("redis store required for lease")
	}
	if key == "" {
		return nil, errors.New("lease key required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLease) TryAcquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !won {
		return nil, nil
	}
	return func(ctx context.Context) error {
		if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
		return nil
	}, nil
}

// SoloLease always succeeds; for single-replica and dev runs.
type SoloLease struct{}

func (SoloLease) TryAcquire(context.Context) (Release, error) {
	return func(context.Context) error { return nil }, nil
}
