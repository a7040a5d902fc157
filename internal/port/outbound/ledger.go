package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/talkmeter/server/internal/model"
)

// ErrStorageUnavailable marks transient storage failures. Adapters join it
// onto driver errors so callers can decide to retry with errors.Is.
var ErrStorageUnavailable = errors.New("storage unavailable")

// LedgerStorePort is the account, interaction and payment store.
//
// Atomic is the only serialization unit: fn runs with exclusive access to the
// account keyed by accountID and every change it makes through tx is
// committed together or not at all. The account row does not need to exist.
type LedgerStorePort interface {
	// Atomic runs fn inside one unit of work scoped to accountID.
	Atomic(ctx context.Context, accountID int64, fn func(tx LedgerTx) error) error

	// GetAccount reads an account without locking. Returns nil if absent.
	GetAccount(ctx context.Context, id int64) (*model.Account, error)

	// ListAccounts lists accounts ordered by id.
	ListAccounts(ctx context.Context, filter model.AccountFilter) ([]*model.Account, error)

	// FindPayment finds a payment by provider and external id. Returns nil if absent.
	FindPayment(ctx context.Context, provider model.PaymentProvider, externalID string) (*model.Payment, error)

	// RecentPending returns the newest pending payment of the account created at or after since.
	RecentPending(ctx context.Context, accountID int64, provider model.PaymentProvider, since time.Time) (*model.Payment, error)

	// ListUnresolvedPayments lists non-terminal payments created before the given instant.
	ListUnresolvedPayments(ctx context.Context, createdBefore time.Time) ([]*model.Payment, error)

	// ListInteractions lists an account's interactions of one service day, oldest first.
	ListInteractions(ctx context.Context, accountID int64, day time.Time) ([]*model.Interaction, error)

	// ListActiveAccountIDs lists accounts having at least one interaction on day.
	ListActiveAccountIDs(ctx context.Context, day time.Time) ([]int64, error)

	// Snapshot reads everything stored for an account. Returns nil if absent.
	Snapshot(ctx context.Context, accountID int64) (*model.AccountSnapshot, error)
}

// LedgerTx is the view of the store inside Atomic. It is bound to the
// context passed to Atomic and must not be used after fn returns.
type LedgerTx interface {
	// LoadAccount reads the account for update. Returns nil if absent.
	LoadAccount(id int64) (*model.Account, error)

	// CreateAccount inserts acc unless a row with its id exists and returns
	// the stored row locked for update.
	CreateAccount(acc *model.Account) (*model.Account, error)

	// SaveAccount writes every field of acc.
	SaveAccount(acc *model.Account) error

	// DeleteAccount removes the account with its interactions and payments.
	DeleteAccount(id int64) (bool, error)

	// AppendInteraction inserts rec and assigns its id.
	AppendInteraction(rec *model.Interaction) error

	// LastInteraction returns the newest interaction of a service day. Returns nil if none.
	LastInteraction(accountID int64, day time.Time) (*model.Interaction, error)

	// SetSummary sets the summary of one interaction.
	SetSummary(interactionID int64, summary string) error

	// InsertPaymentIfAbsent inserts p unless (provider, external id) exists.
	InsertPaymentIfAbsent(p *model.Payment) (bool, error)

	// LockPayment reads a payment for update. Returns nil if absent.
	LockPayment(provider model.PaymentProvider, externalID string) (*model.Payment, error)

	// SavePayment writes every field of p.
	SavePayment(p *model.Payment) error
}
