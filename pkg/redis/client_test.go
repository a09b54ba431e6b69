package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mandi-backend/pkg/config"
)

// fakeServer mimics the commands and the two scripts the client runs.
type fakeServer struct {
	redis.Scripter
	data    map[string]string
	counter map[string]int64
	ttls    map[string]time.Duration
}

func newFakeServer() *fakeServer {
	return &fakeServer{data: map[string]string{}, counter: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeServer) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeServer) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeServer) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeServer) SetXX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeServer) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			n++
		}
		delete(f.data, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeServer) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch sha {
	case windowScript.Hash():
		f.counter[key]++
		if f.counter[key] == 1 {
			f.ttls[key] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult(f.counter[key], nil)
	case releaseScript.Hash():
		if v, ok := f.data[key]; ok && v == args[0] {
			delete(f.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("NOSCRIPT unknown script %s", sha))
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()
	client := &Client{store: server}

	var allowed []bool
	for i := 0; i < 3; i++ {
		ok, count, err := client.FixedWindowAllow(ctx, "join:vendor-1", 2, 1500*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), count)
		allowed = append(allowed, ok)
	}
	assert.Equal(t, []bool{true, true, false}, allowed)
	assert.Equal(t, 1500*time.Millisecond, server.ttls["mandi:rate_limit:join:vendor-1"])
}

func TestCompareAndDeleteOnlyRemovesOwnValue(t *testing.T) {
	ctx := context.Background()
	server := newFakeServer()
	client := &Client{store: server}
	key := client.LockKey("entity", "product:p-1")

	won, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, won)
	won, err = client.SetNX(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	deleted, err := client.CompareAndDelete(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	owner, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "owner-a", owner)

	deleted, err = client.CompareAndDelete(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestSetXXOnlyReplacesExistingKey(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeServer()}
	key := client.IdempotencyKey("vendor|POST|/api/v1/orders", "k-1")

	replaced, err := client.SetXX(ctx, key, "done", time.Hour)
	require.NoError(t, err)
	assert.False(t, replaced)

	_, err = client.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	replaced, err = client.SetXX(ctx, key, "done", time.Hour)
	require.NoError(t, err)
	assert.True(t, replaced)
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.Error(t, client.Ping(ctx))
	_, _, err := client.FixedWindowAllow(ctx, "s", 1, time.Second)
	assert.Error(t, err)
	_, err = client.CompareAndDelete(ctx, "k", "v")
	assert.Error(t, err)
	_, err = client.SetXX(ctx, "k", "v", time.Second)
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 4})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 4, opts.DB)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "mandi:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "mandi:rate_limit:join:vendor-1", client.RateLimitKey("join:vendor-1"))
	assert.Equal(t, "mandi:lock:group-order", client.LockKey("group-order", " "))
}
