package redis

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkmeter/server/internal/port/outbound"
)

// --- Helpers ---

// newTestClient connects to CHATLEDGER_TEST_REDIS or skips.
func newTestClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("CHATLEDGER_TEST_REDIS")
	if addr == "" {
		t.Skip("CHATLEDGER_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

// leaseGuard builds a guard whose lease extensions are answered by extend.
func leaseGuard(renew time.Duration, extend func() bool) (*guard, *int32) {
	var calls int32
	g := &guard{renew: renew}
	g.extend = func(ctx context.Context, key, token string) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return extend(), nil
	}
	return g, &calls
}

// --- Tests ---

func TestGuard_Key(t *testing.T) {
	g := NewGuard(nil, "chatledger:", 0, 0).(*guard)
	assert.Equal(t, "chatledger:guard:account:42", g.key(42))
	assert.Equal(t, 2*time.Minute, g.ttl)
	assert.Equal(t, 40*time.Second, g.renew)
}

func TestGuard_KeepAlive(t *testing.T) {
	t.Run("renews until stopped", func(t *testing.T) {
		g, calls := leaseGuard(10*time.Millisecond, func() bool { return true })
		stop := g.keepAlive("k", "t")

		assert.Eventually(t, func() bool { return atomic.LoadInt32(calls) >= 3 }, time.Second, 5*time.Millisecond)
		stop()
		n := atomic.LoadInt32(calls)
		time.Sleep(40 * time.Millisecond)
		assert.Equal(t, n, atomic.LoadInt32(calls))
	})

	t.Run("gives up once the lease is lost", func(t *testing.T) {
		g, calls := leaseGuard(10*time.Millisecond, func() bool { return false })
		stop := g.keepAlive("k", "t")
		defer stop()

		assert.Eventually(t, func() bool { return atomic.LoadInt32(calls) == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(40 * time.Millisecond)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})
}

func TestGuard(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"

	t.Run("serializes one account", func(t *testing.T) {
		g := NewGuard(client, prefix, time.Minute, 0)
		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := g.Acquire(ctx, 1)
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxInside) {
					atomic.StoreInt32(&maxInside, n)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				release()
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside)
	})

	t.Run("times out while held", func(t *testing.T) {
		g := NewGuard(client, prefix, time.Minute, 150*time.Millisecond)
		release, err := g.Acquire(ctx, 2)
		require.NoError(t, err)
		defer release()

		_, err = g.Acquire(ctx, 2)
		assert.ErrorIs(t, err, outbound.ErrGuardTimeout)
	})

	t.Run("held lease outlives ttl", func(t *testing.T) {
		g := NewGuard(client, prefix, 150*time.Millisecond, 100*time.Millisecond)
		release, err := g.Acquire(ctx, 4)
		require.NoError(t, err)

		time.Sleep(400 * time.Millisecond)
		_, err = g.Acquire(ctx, 4)
		assert.ErrorIs(t, err, outbound.ErrGuardTimeout)

		release()
		again, err := g.Acquire(ctx, 4)
		require.NoError(t, err)
		again()
	})

	t.Run("stale holder cannot release new lock", func(t *testing.T) {
		g := NewGuard(client, prefix, time.Minute, time.Second)
		stale, err := g.Acquire(ctx, 3)
		require.NoError(t, err)

		// Lease lost while the holder still runs.
		require.NoError(t, client.Del(ctx, g.(*guard).key(3)).Err())
		fresh, err := g.Acquire(ctx, 3)
		require.NoError(t, err)
		defer fresh()

		stale()
		exists, err := client.Exists(ctx, g.(*guard).key(3)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})
}
