package outbound

import (
	"context"
	"errors"

	"github.com/talkmeter/server/internal/model"
)

// ErrGuardTimeout is returned when the account guard cannot be acquired in time.
var ErrGuardTimeout = errors.New("account guard timeout")

// AccountGuardPort serializes conversation turns per account.
type AccountGuardPort interface {
	// Acquire blocks until the account is free or ctx is done.
	// The returned release func must be called exactly once.
	Acquire(ctx context.Context, accountID int64) (release func(), err error)
}

// GeneratorPort produces model replies.
type GeneratorPort interface {
	// Generate answers text given free-form history. An empty reply is not an error.
	Generate(ctx context.Context, text, history string) (string, error)
}

// ArchivePort keeps account snapshots taken before irreversible deletes.
type ArchivePort interface {
	// StoreSnapshot writes snap and returns where it was stored.
	StoreSnapshot(ctx context.Context, snap *model.AccountSnapshot) (string, error)
}
