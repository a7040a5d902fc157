package account

import (
	"context"

	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/utils/clock"
	"go.uber.org/zap"
)

// AccountDomain defines the account state and quota gate operations used by
// the conversation layer.
type AccountDomain interface {
	// Normalize returns the account after lazy creation, day rollover and
	// subscription expiry. Changes are persisted before it returns.
	Normalize(ctx context.Context, id int64) (*model.Account, error)

	// Check normalizes the account and runs the quota gate in one unit of work.
	// A hard-cap ban set by the gate is persisted.
	Check(ctx context.Context, id int64) (*Decision, error)

	// Record counts an answered request and appends it to the interaction log.
	// It does not re-run the gate.
	Record(ctx context.Context, id int64, input, output string) (*model.Interaction, error)

	// GetAccount returns a normalized existing account.
	GetAccount(ctx context.Context, id int64) (*model.Account, error)

	// Status returns the conversation-layer view of the account.
	Status(ctx context.Context, id int64) (*model.AccountStatus, error)

	// TouchProfile stores the display name fields when they changed.
	TouchProfile(ctx context.Context, id int64, username, fullName string) error

	// UpdateMemory replaces the long-term memory note of an existing account.
	UpdateMemory(ctx context.Context, id int64, memory string) error
}

// accountDomain implements AccountDomain.
type accountDomain struct {
	store   outbound.LedgerStorePort
	cal     *clock.Calendar
	cfg     Config
	metrics outbound.LedgerMetricsPort
	logger  *zap.Logger
}

// NewAccountDomain creates a new account domain service.
func NewAccountDomain(
	store outbound.LedgerStorePort,
	cal *clock.Calendar,
	cfg Config,
	metrics outbound.LedgerMetricsPort,
	logger *zap.Logger,
) AccountDomain {
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	return &accountDomain{
		store:   store,
		cal:     cal,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

func (d *accountDomain) Normalize(ctx context.Context, id int64) (*model.Account, error) {
	if id <= 0 {
		return nil, ErrInvalidAccountID
	}

	var out *model.Account
	err := d.store.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
		acc, changed, err := Prepare(tx, id, d.cal.Today(), d.cfg, true)
		if err != nil {
			return err
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

func (d *accountDomain) Check(ctx context.Context, id int64) (*Decision, error) {
	if id <= 0 {
		return nil, ErrInvalidAccountID
	}

	today := d.cal.Today()
	var dec Decision
	err := d.store.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
		acc, changed, err := Prepare(tx, id, today, d.cfg, true)
		if err != nil {
			return err
		}
		var banned bool
		dec, banned = Decide(acc, today, d.cfg)
		if changed || banned {
			if err := tx.SaveAccount(acc); err != nil {
				return err
			}
		}
		if banned {
			d.logger.Warn("daily hard limit reached, account banned for the day",
				zap.Int64("account_id", id),
				zap.Int("requests_today", acc.RequestsToday),
			)
		}
		dec.Account = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	reason := "allowed"
	if !dec.Allowed {
		reason = string(dec.Reason)
	}
	d.metrics.RecordDecision(reason)
	return &dec, nil
}

func (d *accountDomain) Record(ctx context.Context, id int64, input, output string) (*model.Interaction, error) {
	if id <= 0 {
		return nil, ErrInvalidAccountID
	}

	today := d.cal.Today()
	var rec *model.Interaction
	var paid bool
	err := d.store.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
		acc, _, err := Prepare(tx, id, today, d.cfg, true)
		if err != nil {
			return err
		}
		paid = acc.PaidActive(today)
		Consume(acc, today)

		rec = &model.Interaction{
			AccountID:  id,
			ServiceDay: today,
			Input:      input,
			Output:     output,
			CreatedAt:  d.cal.Now(),
		}
		if err := tx.AppendInteraction(rec); err != nil {
			return err
		}
		return tx.SaveAccount(acc)
	})
	if err != nil {
		return nil, err
	}

	d.metrics.RecordInteraction(paid)
	return rec, nil
}

func (d *accountDomain) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if id <= 0 {
		return nil, ErrInvalidAccountID
	}

	var out *model.Account
	err := d.store.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
		acc, changed, err := Prepare(tx, id, d.cal.Today(), d.cfg, false)
		if err != nil {
			return err
		}
		if acc == nil {
			return ErrAccountNotFound
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

func (d *accountDomain) Status(ctx context.Context, id int64) (*model.AccountStatus, error) {
	acc, err := d.Normalize(ctx, id)
	if err != nil {
		return nil, err
	}
	return StatusOf(acc, d.cal.Today()), nil
}

func (d *accountDomain) TouchProfile(ctx context.Context, id int64, username, fullName string) error {
	if id <= 0 {
		return ErrInvalidAccountID
	}

	return d.store.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
		acc, changed, err := Prepare(tx, id, d.cal.Today(), d.cfg, true)
		if err != nil {
			return err
		}
		if username != "" && acc.Username != username {
			acc.Username = username
			changed = true
		}
		if fullName != "" && acc.FullName != fullName {
			acc.FullName = fullName
			changed = true
		}
		if !changed {
			return nil
		}
		return tx.SaveAccount(acc)
	})
}

func (d *accountDomain) UpdateMemory(ctx context.Context, id int64, memory string) error {
	if id <= 0 {
		return ErrInvalidAccountID
	}

	return d.store.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
		acc, _, err := Prepare(tx, id, d.cal.Today(), d.cfg, false)
		if err != nil {
			return err
		}
		if acc == nil {
			return ErrAccountNotFound
		}
		acc.Memory = memory
		return tx.SaveAccount(acc)
	})
}
