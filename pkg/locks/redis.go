package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRedisTTL  = 15 * time.Second
	defaultRedisWait = 5 * time.Second
	retryInterval    = 25 * time.Millisecond
)

// ErrLockTimeout is returned when a key stays held past the wait budget.
var ErrLockTimeout = errors.New("lock wait timed out")

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// Redis holds entity keys with SETNX so several API replicas serialise on
// the same entity. Each key carries a TTL so a crashed holder cannot wedge it.
type Redis struct {
	store redisStore
	ttl   time.Duration
	wait  time.Duration
}

func NewRedis(store redisStore, ttl, wait time.Duration) (*Redis, error) {
	if store == nil {
		return nil, errors.New("redis store required for locker")
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	if wait <= 0 {
		wait = defaultRedisWait
	}
	return &Redis{store: store, ttl: ttl, wait: wait}, nil
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	ordered := normalize(keys)
	owner := uuid.NewString()
	held := make([]string, 0, len(ordered))

	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	for _, key := range ordered {
		redisKey := r.store.LockKey("entity", key)
		if err := r.acquire(waitCtx, redisKey, owner); err != nil {
			r.releaseAll(context.WithoutCancel(ctx), held, owner)
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		held = append(held, redisKey)
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.releaseAll(context.WithoutCancel(ctx), held, owner) })
	}, nil
}

func (r *Redis) acquire(ctx context.Context, key, owner string) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.store.SetNX(ctx, key, owner, r.ttl)
		if err != nil {
			return fmt.Errorf("setnx: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrLockTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// releaseAll deletes keys still owned by this holder. A key whose TTL lapsed
// and was taken by someone else is left alone.
func (r *Redis) releaseAll(ctx context.Context, keys []string, owner string) {
	for i := len(keys) - 1; i >= 0; i-- {
		_, _ = r.store.CompareAndDelete(ctx, keys[i], owner)
	}
}
