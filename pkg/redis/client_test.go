package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
)

func TestFixedWindowAllowStartsWindowOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "checkout:user:7", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, allowed, "hit %d", i+1)
		assert.Equal(t, int64(i+1), count)
	}
	assert.Equal(t, map[string]int64{"ep:rate_limit:checkout:user:7": time.Minute.Milliseconds()}, mock.windows)

	_, _, err := client.FixedWindowAllow(ctx, "checkout:user:7", 2, 0)
	assert.Error(t, err)
}

func TestDelIfEqualsOnlyDeletesForOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	key := client.LockKey("cron-worker:dev")
	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := client.DelIfEquals(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = client.DelIfEquals(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "ep:idempotency:stripe-webhook:evt_1", client.IdempotencyKey("stripe-webhook", "evt_1"))
	assert.Equal(t, "ep:rate_limit:checkout:ip:1.2.3.4", client.RateLimitKey("checkout:ip:1.2.3.4"))
	assert.Equal(t, "ep:lock:cron-worker:prod", client.LockKey("cron-worker:prod"))
	assert.Equal(t, "ep:idempotency:scope", client.IdempotencyKey(" scope ", ""))
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.Error(t, client.Ping(ctx))
	_, err := client.SetNX(ctx, "k", "v", time.Second)
	assert.Error(t, err)
	_, _, err = client.FixedWindowAllow(ctx, "s", 1, time.Second)
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/3", PoolSize: 20, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)

	_, err = optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
	_, err = optionsFromConfig(config.RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}

// mockCmdable executes the two scripts by hash, the way EvalSha does on a warm server.
type mockCmdable struct {
	data    map[string]string
	counts  map[string]int64
	windows map[string]int64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, counts: map[string]int64{}, windows: map[string]int64{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) EvalSha(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	switch sha {
	case incrWindowScript.Hash():
		m.counts[keys[0]]++
		if m.counts[keys[0]] == 1 {
			m.windows[keys[0]] = args[0].(int64)
		}
		cmd.SetVal(m.counts[keys[0]])
	case delIfEqualsScript.Hash():
		if v, ok := m.data[keys[0]]; ok && v == fmt.Sprint(args[0]) {
			delete(m.data, keys[0])
			cmd.SetVal(int64(1))
		} else {
			cmd.SetVal(int64(0))
		}
	default:
		cmd.SetErr(fmt.Errorf("unknown script %s", sha))
	}
	return cmd
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, redis.NewScript(script).Hash(), keys, args...)
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult(redis.NewScript(script).Hash(), nil)
}
