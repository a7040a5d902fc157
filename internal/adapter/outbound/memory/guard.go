package memory

import (
	"context"
	"errors"
	"time"

	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/utils/keylock"
)

// guard implements outbound.AccountGuardPort within one process.
type guard struct {
	locks *keylock.Map
	wait  time.Duration
}

// NewGuard creates an in-process account guard. Acquire gives up with
// outbound.ErrGuardTimeout after wait; zero waits as long as ctx allows.
func NewGuard(wait time.Duration) outbound.AccountGuardPort {
	return &guard{locks: keylock.New(), wait: wait}
}

func (g *guard) Acquire(ctx context.Context, accountID int64) (func(), error) {
	lockCtx := ctx
	if g.wait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, g.wait)
		defer cancel()
	}

	if err := g.locks.Lock(lockCtx, accountID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, outbound.ErrGuardTimeout
		}
		return nil, err
	}
	return func() { g.locks.Unlock(accountID) }, nil
}

// Compile-time check
var _ outbound.AccountGuardPort = (*guard)(nil)
