package admin

import (
	"context"
	"time"

	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/utils/clock"
	"go.uber.org/zap"
)

// AdminDomain defines operator actions on accounts.
type AdminDomain interface {
	// ListAccounts lists accounts ordered by id.
	ListAccounts(ctx context.Context, filter model.AccountFilter) ([]*model.Account, error)

	// GetAccount returns a normalized existing account. It never creates one.
	GetAccount(ctx context.Context, id int64) (*model.Account, error)

	// Grant30Days activates a subscription without a payment row.
	Grant30Days(ctx context.Context, id int64) (*model.Account, error)

	// ResetToFree drops the subscription and restores the free quota.
	ResetToFree(ctx context.Context, id int64) (*model.Account, error)

	// DeleteAccount removes the account with its interactions and payments.
	// It is irreversible. A snapshot is archived first when an archive is configured.
	DeleteAccount(ctx context.Context, id int64) error

	// ListUnresolvedPayments lists payments still not terminal after olderThan.
	ListUnresolvedPayments(ctx context.Context, olderThan time.Duration) ([]*model.Payment, error)
}

// adminDomain implements AdminDomain.
type adminDomain struct {
	store   outbound.LedgerStorePort
	archive outbound.ArchivePort
	cal     *clock.Calendar
	cfg     account.Config
	metrics outbound.LedgerMetricsPort
	logger  *zap.Logger
}

// NewAdminDomain creates a new admin domain service. archive may be nil.
func NewAdminDomain(
	store outbound.LedgerStorePort,
	archive outbound.ArchivePort,
	cal *clock.Calendar,
	cfg account.Config,
	metrics outbound.LedgerMetricsPort,
	logger *zap.Logger,
) AdminDomain {
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	return &adminDomain{
		store:   store,
		archive: archive,
		cal:     cal,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

func (d *adminDomain) ListAccounts(ctx context.Context, filter model.AccountFilter) ([]*model.Account, error) {
	filter.DefaultLimit()
	return d.store.ListAccounts(ctx, filter)
}

func (d *adminDomain) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return d.mutate(ctx, id, false, nil)
}

func (d *adminDomain) Grant30Days(ctx context.Context, id int64) (*model.Account, error) {
	today := d.cal.Today()
	acc, err := d.mutate(ctx, id, true, func(acc *model.Account) {
		account.Activate(acc, today, d.cfg.SubscriptionDays)
	})
	if err != nil {
		return nil, err
	}

	d.metrics.RecordActivation("admin")
	d.logger.Info("subscription granted by admin",
		zap.Int64("account_id", id),
		zap.Time("subscription_ends", *acc.SubscriptionEnds),
	)
	return acc, nil
}

func (d *adminDomain) ResetToFree(ctx context.Context, id int64) (*model.Account, error) {
	acc, err := d.mutate(ctx, id, true, func(acc *model.Account) {
		account.ResetToFree(acc, d.cfg)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("account reset to free tier by admin", zap.Int64("account_id", id))
	return acc, nil
}

// mutate normalizes the account under its lock and applies fn. A nil fn only
// persists normalization.
func (d *adminDomain) mutate(ctx context.Context, id int64, create bool, fn func(acc *model.Account)) (*model.Account, error) {
	if id <= 0 {
		return nil, account.ErrInvalidAccountID
	}

	var out *model.Account
	err := d.store.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
		acc, changed, err := account.Prepare(tx, id, d.cal.Today(), d.cfg, create)
		if err != nil {
			return err
		}
		if acc == nil {
			return account.ErrAccountNotFound
		}
		if fn != nil {
			fn(acc)
			changed = true
		}
		if changed {
			if err := tx.SaveAccount(acc); err != nil {
				return err
			}
		}
		out = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *adminDomain) DeleteAccount(ctx context.Context, id int64) error {
	if id <= 0 {
		return account.ErrInvalidAccountID
	}

	location := ""
	if d.archive != nil {
		snap, err := d.store.Snapshot(ctx, id)
		if err != nil {
			return err
		}
		if snap == nil {
			return account.ErrAccountNotFound
		}
		snap.TakenAt = d.cal.Now()
		if location, err = d.archive.StoreSnapshot(ctx, snap); err != nil {
			d.logger.Error("failed to archive account before delete",
				zap.Int64("account_id", id),
				zap.Error(err),
			)
			return err
		}
	}

	var deleted bool
	err := d.store.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
		var err error
		deleted, err = tx.DeleteAccount(id)
		return err
	})
	if err != nil {
		return err
	}
	if !deleted {
		return account.ErrAccountNotFound
	}

	d.logger.Info("account deleted by admin",
		zap.Int64("account_id", id),
		zap.String("archive", location),
	)
	return nil
}

func (d *adminDomain) ListUnresolvedPayments(ctx context.Context, olderThan time.Duration) ([]*model.Payment, error) {
	if olderThan < 0 {
		olderThan = 0
	}
	return d.store.ListUnresolvedPayments(ctx, d.cal.Now().Add(-olderThan))
}
