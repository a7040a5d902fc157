package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/talkmeter/server/internal/port/outbound"
)

const guardKeyPrefix = "guard:account:"

// releaseScript deletes the key only if this holder still owns it, so a
// holder whose lease expired cannot release the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the lease expiry out only while this holder owns it.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// guard implements outbound.AccountGuardPort across processes.
type guard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	renew  time.Duration
	extend func(ctx context.Context, key, token string) (bool, error)
}

// NewGuard creates a distributed account guard. The lease ttl bounds how long
// a crashed holder blocks the account. A live holder renews the lease every
// ttl/3, so a turn may run longer than ttl. wait bounds Acquire.
func NewGuard(client redis.UniversalClient, prefix string, ttl, wait time.Duration) outbound.AccountGuardPort {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	g := &guard{
		client: client,
		prefix: prefix + guardKeyPrefix,
		ttl:    ttl,
		wait:   wait,
		poll:   50 * time.Millisecond,
		renew:  ttl / 3,
	}
	g.extend = g.extendLease
	return g
}

func (g *guard) key(accountID int64) string {
	return g.prefix + strconv.FormatInt(accountID, 10)
}

func (g *guard) Acquire(ctx context.Context, accountID int64) (func(), error) {
	key := g.key(accountID)
	token := uuid.NewString()

	var deadline <-chan time.Time
	if g.wait > 0 {
		timer := time.NewTimer(g.wait)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return g.releaser(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, outbound.ErrGuardTimeout
		case <-ticker.C:
		}
	}
}

// releaser returns the release func. It runs on a fresh context because the
// turn's context is often done by the time the lock is released.
func (g *guard) releaser(key, token string) func() {
	stop := g.keepAlive(key, token)
	return func() {
		stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// On failure the lease still expires after ttl.
		_ = releaseScript.Run(ctx, g.client, []string{key}, token).Err()
	}
}

// keepAlive renews the lease until stop is called or the lease is lost.
// Failed renewals are retried on the next tick.
func (g *guard) keepAlive(key, token string) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(g.renew)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := g.extend(ctx, key, token)
				if err == nil && !ok {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (g *guard) extendLease(ctx context.Context, key, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.renew)
	defer cancel()
	n, err := extendScript.Run(ctx, g.client, []string{key}, token, g.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Compile-time check
var _ outbound.AccountGuardPort = (*guard)(nil)
