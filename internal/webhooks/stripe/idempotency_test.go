package stripewebhook

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprint(value)
	s.ttls[key] = ttl
	return nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	s.ttls[key] = ttl
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func TestDeliveryGuardStates(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	guard, err := NewDeliveryGuard(store, 24*time.Hour)
	require.NoError(t, err)

	state, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryNew, state)
	assert.Equal(t, maxInFlightTTL, store.ttls[DeliveryScope+":evt_1"])

	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryInFlight, state, "a delivery being handled must not look finished")

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	assert.Equal(t, 24*time.Hour, store.ttls[DeliveryScope+":evt_1"])
	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryDone, state)
}

func TestDeliveryGuardReleaseLetsRetryThrough(t *testing.T) {
	ctx := context.Background()
	guard, err := NewDeliveryGuard(newMemoryStore(), time.Minute)
	require.NoError(t, err)

	state, err := guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	require.Equal(t, DeliveryNew, state)
	require.NoError(t, guard.Release(ctx, "evt_2"))

	state, err = guard.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, DeliveryNew, state)
}

func TestDeliveryGuardValidates(t *testing.T) {
	_, err := NewDeliveryGuard(nil, time.Minute)
	require.Error(t, err)
	_, err = NewDeliveryGuard(newMemoryStore(), 0)
	require.Error(t, err)

	guard, err := NewDeliveryGuard(newMemoryStore(), time.Minute)
	require.NoError(t, err)
	_, err = guard.Claim(context.Background(), "")
	require.ErrorIs(t, err, errEventIDRequired)
}
