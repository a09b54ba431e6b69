package locks

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/mandi-backend/pkg/config"
)

// FromConfig picks the backend named by cfg. The redis backend needs store.
func FromConfig(cfg config.LocksConfig, store redisStore) (Locker, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.LockBackendLocal:
		return NewLocal(), nil
	case config.LockBackendRedis:
		if store == nil {
			return nil, fmt.Errorf("redis lock backend requires a redis client")
		}
		locker, err := NewRedis(store, cfg.TTL, cfg.Wait)
		if err != nil {
			return nil, err
		}
		return locker, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}
