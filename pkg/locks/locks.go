package locks

import (
	"context"
	"sort"
)

// Locker serialises writers per entity key. Keys are acquired in sorted order
// so callers holding several keys cannot deadlock each other.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (Unlock, error)
}

// Unlock releases every key taken by a Lock call. Safe to call once.
type Unlock func()

// ProductKey, OrderKey and GroupOrderKey build the lock keys shared by the
// engines. Order and group-order keys must be taken before product keys.
func ProductKey(id string) string    { return "product:" + id }
func OrderKey(id string) string      { return "order:" + id }
func GroupOrderKey(id string) string { return "group-order:" + id }

func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
