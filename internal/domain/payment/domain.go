package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/utils/clock"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Price is an amount in minor units.
type Price struct {
	Amount   int64
	Currency string
}

// Config holds payment settings.
type Config struct {
	Account account.Config

	// PendingTTL is how long a pending card intent is offered again instead
	// of creating a new one.
	PendingTTL time.Duration

	TokenPrice         Price
	InvoiceTitle       string
	InvoiceDescription string

	CardPrice       Price
	CardDescription string
	CardReturnURL   string
}

// DefaultConfig returns default payment settings.
func DefaultConfig() Config {
	return Config{
		Account:            account.DefaultConfig(),
		PendingTTL:         10 * time.Minute,
		TokenPrice:         Price{Amount: 100, Currency: "XTR"},
		InvoiceTitle:       "Subscription for 30 days",
		InvoiceDescription: "Unlimited requests for 30 days",
		CardPrice:          Price{Amount: 19900, Currency: "RUB"},
		CardDescription:    "Subscription for 30 days",
	}
}

// PaymentDomain defines the payment ledger.
type PaymentDomain interface {
	// RecordConfirmedPayment stores a settled token-currency payment and
	// activates the subscription in the same unit of work. Replays of the
	// same external id are no-ops.
	RecordConfirmedPayment(ctx context.Context, in *model.ConfirmedPaymentInput) (*model.PaymentResult, error)

	// CreatePending stores a card intent as pending. Replays return the stored row.
	CreatePending(ctx context.Context, in *model.PendingPaymentInput) (*model.PaymentResult, error)

	// RecentPending returns the newest pending card intent younger than ttl,
	// or nil. A non-positive ttl uses the configured default.
	RecentPending(ctx context.Context, accountID int64, ttl time.Duration) (*model.Payment, error)

	// ApplyStatus records a provider status for a card payment and activates
	// the subscription on the transition into succeeded.
	ApplyStatus(ctx context.Context, in *model.StatusUpdate) (*model.PaymentResult, error)

	// NewTokenInvoice issues an invoice for the token-currency channel.
	NewTokenInvoice(ctx context.Context, accountID int64) (*model.Invoice, error)

	// StartCardCheckout reuses a recent pending intent or creates a new one.
	StartCardCheckout(ctx context.Context, accountID int64) (*model.Checkout, error)

	// CheckCardPayment asks the gateway for the current status of an account's payment.
	CheckCardPayment(ctx context.Context, accountID int64, externalID string) (*model.PaymentResult, error)

	// HandleCardNotification verifies a gateway webhook and re-checks the payment it names.
	HandleCardNotification(ctx context.Context, payload []byte, signature string) (*model.PaymentResult, error)

	// ListUnresolved lists payments still unresolved after olderThan.
	ListUnresolved(ctx context.Context, olderThan time.Duration) ([]*model.Payment, error)

	// ReconcileUnresolved re-checks unresolved card payments and returns how many reached a terminal status.
	ReconcileUnresolved(ctx context.Context, olderThan time.Duration) (int, error)
}

// paymentDomain implements PaymentDomain.
type paymentDomain struct {
	store   outbound.LedgerStorePort
	gateway outbound.CardGatewayPort
	guard   outbound.AccountGuardPort
	cal     *clock.Calendar
	cfg     Config
	metrics outbound.LedgerMetricsPort
	logger  *zap.Logger
}

// NewPaymentDomain creates a new payment domain service. gateway may be nil
// when card payments are disabled. guard serializes card checkouts per
// account and is shared with the chat turn.
func NewPaymentDomain(
	store outbound.LedgerStorePort,
	gateway outbound.CardGatewayPort,
	guard outbound.AccountGuardPort,
	cal *clock.Calendar,
	cfg Config,
	metrics outbound.LedgerMetricsPort,
	logger *zap.Logger,
) PaymentDomain {
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultConfig().PendingTTL
	}
	return &paymentDomain{
		store:   store,
		gateway: gateway,
		guard:   guard,
		cal:     cal,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

func validatePayment(accountID int64, externalID string, amount int64, currency string) error {
	if accountID <= 0 {
		return account.ErrInvalidAccountID
	}
	if externalID == "" {
		return ErrInvalidExternalID
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if currency == "" {
		return ErrInvalidCurrency
	}
	return nil
}

// rawJSON keeps provider payloads queryable. Non-JSON bodies are stored as a JSON string.
func rawJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return datatypes.JSON(quoted)
}

func (d *paymentDomain) RecordConfirmedPayment(ctx context.Context, in *model.ConfirmedPaymentInput) (*model.PaymentResult, error) {
	if err := validatePayment(in.AccountID, in.ExternalID, in.Amount, in.Currency); err != nil {
		return nil, err
	}
	if in.Payload != "" {
		if err := checkInvoicePayload(in.Payload, d.cfg.Account.SubscriptionDays, in.AccountID); err != nil {
			return nil, err
		}
	}

	today, now := d.cal.Today(), d.cal.Now()
	res := &model.PaymentResult{}
	err := d.store.Atomic(ctx, in.AccountID, func(tx outbound.LedgerTx) error {
		acc, changed, err := account.Prepare(tx, in.AccountID, today, d.cfg.Account, false)
		if err != nil {
			return err
		}
		if acc == nil {
			return account.ErrAccountNotFound
		}

		p := &model.Payment{
			AccountID:  in.AccountID,
			Provider:   model.PaymentProviderToken,
			ExternalID: in.ExternalID,
			Gateway:    string(model.PaymentProviderToken),
			Amount:     in.Amount,
			Currency:   in.Currency,
			Status:     model.PaymentStatusSucceeded,
			Payload:    in.Payload,
			Raw:        rawJSON(in.Raw),
			PaidAt:     &now,
			CreatedAt:  now,
		}
		inserted, err := tx.InsertPaymentIfAbsent(p)
		if err != nil {
			return err
		}
		if inserted {
			account.Activate(acc, today, d.cfg.Account.SubscriptionDays)
			changed = true
			res.Activated = true
		} else if p, err = tx.LockPayment(model.PaymentProviderToken, in.ExternalID); err != nil {
			return err
		}
		if changed {
			if err := tx.SaveAccount(acc); err != nil {
				return err
			}
		}

		res.Payment, res.Account, res.Inserted = p, acc, inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Inserted {
		d.metrics.RecordPayment(string(model.PaymentProviderToken), string(model.PaymentStatusSucceeded))
		d.metrics.RecordActivation(string(model.PaymentProviderToken))
		d.logger.Info("token payment recorded, subscription activated",
			zap.Int64("account_id", in.AccountID),
			zap.String("external_id", in.ExternalID),
			zap.Int64("amount", in.Amount),
			zap.String("currency", in.Currency),
		)
	} else {
		d.logger.Debug("duplicate token payment ignored",
			zap.Int64("account_id", in.AccountID),
			zap.String("external_id", in.ExternalID),
		)
	}
	return res, nil
}

func (d *paymentDomain) CreatePending(ctx context.Context, in *model.PendingPaymentInput) (*model.PaymentResult, error) {
	if err := validatePayment(in.AccountID, in.ExternalID, in.Amount, in.Currency); err != nil {
		return nil, err
	}

	today, now := d.cal.Today(), d.cal.Now()
	res := &model.PaymentResult{}
	err := d.store.Atomic(ctx, in.AccountID, func(tx outbound.LedgerTx) error {
		acc, changed, err := account.Prepare(tx, in.AccountID, today, d.cfg.Account, false)
		if err != nil {
			return err
		}
		if acc == nil {
			return account.ErrAccountNotFound
		}
		if changed {
			if err := tx.SaveAccount(acc); err != nil {
				return err
			}
		}

		p := &model.Payment{
			AccountID:       in.AccountID,
			Provider:        model.PaymentProviderCard,
			ExternalID:      in.ExternalID,
			Gateway:         in.Gateway,
			IdempotencyKey:  in.IdempotencyKey,
			Amount:          in.Amount,
			Currency:        in.Currency,
			Status:          model.PaymentStatusPending,
			Payload:         in.Payload,
			ConfirmationURL: in.ConfirmationURL,
			Raw:             rawJSON(in.Raw),
			CreatedAt:       now,
		}
		inserted, err := tx.InsertPaymentIfAbsent(p)
		if err != nil {
			return err
		}
		if !inserted {
			if p, err = tx.LockPayment(model.PaymentProviderCard, in.ExternalID); err != nil {
				return err
			}
		}
		res.Payment, res.Account, res.Inserted = p, acc, inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Inserted {
		d.metrics.RecordPayment(string(model.PaymentProviderCard), string(model.PaymentStatusPending))
		d.logger.Info("card payment created",
			zap.Int64("account_id", in.AccountID),
			zap.String("external_id", in.ExternalID),
			zap.String("gateway", in.Gateway),
		)
	}
	return res, nil
}

func (d *paymentDomain) RecentPending(ctx context.Context, accountID int64, ttl time.Duration) (*model.Payment, error) {
	if accountID <= 0 {
		return nil, account.ErrInvalidAccountID
	}
	if ttl <= 0 {
		ttl = d.cfg.PendingTTL
	}
	return d.store.RecentPending(ctx, accountID, model.PaymentProviderCard, d.cal.Now().Add(-ttl))
}

func (d *paymentDomain) ApplyStatus(ctx context.Context, in *model.StatusUpdate) (*model.PaymentResult, error) {
	if in.ExternalID == "" {
		return nil, ErrInvalidExternalID
	}
	if in.Status == "" {
		return nil, ErrInvalidStatus
	}

	existing, err := d.store.FindPayment(ctx, model.PaymentProviderCard, in.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPaymentNotFound
	}

	target := model.PaymentStatus(in.Status)
	today, now := d.cal.Today(), d.cal.Now()
	res := &model.PaymentResult{}
	var from model.PaymentStatus
	err = d.store.Atomic(ctx, existing.AccountID, func(tx outbound.LedgerTx) error {
		// account before payment keeps lock order stable across operations
		acc, changed, err := account.Prepare(tx, existing.AccountID, today, d.cfg.Account, false)
		if err != nil {
			return err
		}

		p, err := tx.LockPayment(model.PaymentProviderCard, in.ExternalID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPaymentNotFound
		}
		res.Payment = p
		from = p.Status

		if p.Status == target {
			return nil
		}
		if !p.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, p.Status, target)
		}

		p.Status = target
		if raw := rawJSON(in.Raw); raw != nil {
			p.Raw = raw
		}
		p.LastError = ""
		p.CheckedAt = &now

		switch target {
		case model.PaymentStatusSucceeded:
			if acc == nil {
				return account.ErrAccountNotFound
			}
			p.PaidAt = in.PaidAt
			if p.PaidAt == nil {
				p.PaidAt = &now
			}
			account.Activate(acc, today, d.cfg.Account.SubscriptionDays)
			changed = true
			res.Activated = true
		case model.PaymentStatusCanceled:
			p.CanceledAt = in.CanceledAt
			if p.CanceledAt == nil {
				p.CanceledAt = &now
			}
		}

		if err := tx.SavePayment(p); err != nil {
			return err
		}
		if acc != nil && changed {
			if err := tx.SaveAccount(acc); err != nil {
				return err
			}
		}
		res.Account = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != target {
		d.metrics.RecordPayment(string(model.PaymentProviderCard), string(target))
		d.logger.Info("card payment status changed",
			zap.Int64("account_id", existing.AccountID),
			zap.String("external_id", in.ExternalID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
		)
	}
	if res.Activated {
		d.metrics.RecordActivation(string(model.PaymentProviderCard))
	}
	return res, nil
}

func (d *paymentDomain) normalize(ctx context.Context, accountID int64) (*model.Account, error) {
	var out *model.Account
	err := d.store.Atomic(ctx, accountID, func(tx outbound.LedgerTx) error {
		acc, changed, err := account.Prepare(tx, accountID, d.cal.Today(), d.cfg.Account, true)
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
	return out, err
}

func (d *paymentDomain) NewTokenInvoice(ctx context.Context, accountID int64) (*model.Invoice, error) {
	if accountID <= 0 {
		return nil, account.ErrInvalidAccountID
	}
	acc, err := d.normalize(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.PaidActive(d.cal.Today()) {
		return nil, ErrAlreadySubscribed
	}

	return &model.Invoice{
		AccountID:   accountID,
		Payload:     invoicePayload(d.cfg.Account.SubscriptionDays, accountID, d.cal.Now()),
		Title:       d.cfg.InvoiceTitle,
		Description: d.cfg.InvoiceDescription,
		Amount:      d.cfg.TokenPrice.Amount,
		Currency:    d.cfg.TokenPrice.Currency,
	}, nil
}

func (d *paymentDomain) StartCardCheckout(ctx context.Context, accountID int64) (*model.Checkout, error) {
	if accountID <= 0 {
		return nil, account.ErrInvalidAccountID
	}
	if d.gateway == nil {
		return nil, ErrProviderNotAvailable
	}
	if d.cfg.CardPrice.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	// Reuse lookup, gateway create and pending insert must not interleave
	// for one account, or two intents get issued.
	release, err := d.guard.Acquire(ctx, accountID)
	if err != nil {
		if errors.Is(err, outbound.ErrGuardTimeout) {
			return nil, ErrCheckoutInProgress
		}
		return nil, fmt.Errorf("acquire account guard: %w", err)
	}
	defer release()

	acc, err := d.normalize(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.PaidActive(d.cal.Today()) {
		return nil, ErrAlreadySubscribed
	}

	if p, err := d.RecentPending(ctx, accountID, 0); err != nil {
		return nil, err
	} else if p != nil {
		return &model.Checkout{Payment: p, ConfirmationURL: p.ConfirmationURL, Reused: true}, nil
	}

	key := uuid.NewString()
	payload := invoicePayload(d.cfg.Account.SubscriptionDays, accountID, d.cal.Now())
	intent, err := d.gateway.CreatePayment(ctx, &model.CardPaymentRequest{
		AccountID:      accountID,
		Amount:         d.cfg.CardPrice.Amount,
		Currency:       d.cfg.CardPrice.Currency,
		Description:    d.cfg.CardDescription,
		ReturnURL:      d.cfg.CardReturnURL,
		IdempotencyKey: key,
		Metadata: map[string]string{
			"account_id": strconv.FormatInt(accountID, 10),
			"payload":    payload,
		},
	})
	if err != nil {
		d.logger.Warn("card gateway create failed",
			zap.Int64("account_id", accountID),
			zap.String("gateway", d.gateway.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	res, err := d.CreatePending(ctx, &model.PendingPaymentInput{
		AccountID:       accountID,
		ExternalID:      intent.ExternalID,
		Gateway:         d.gateway.Name(),
		IdempotencyKey:  key,
		Amount:          d.cfg.CardPrice.Amount,
		Currency:        d.cfg.CardPrice.Currency,
		ConfirmationURL: intent.ConfirmationURL,
		Payload:         payload,
		Raw:             intent.Raw,
	})
	if err != nil {
		return nil, err
	}

	if status := effectiveStatus(intent); status != model.PaymentStatusPending {
		applied, err := d.ApplyStatus(ctx, &model.StatusUpdate{ExternalID: intent.ExternalID, Status: string(status), Raw: intent.Raw})
		if err != nil {
			return nil, err
		}
		res = applied
	}

	return &model.Checkout{Payment: res.Payment, ConfirmationURL: intent.ConfirmationURL}, nil
}

// effectiveStatus only trusts succeeded when the gateway also reports the money as paid.
func effectiveStatus(intent *model.CardPaymentIntent) model.PaymentStatus {
	status := model.PaymentStatus(intent.Status)
	if status == "" || (status == model.PaymentStatusSucceeded && !intent.Paid) {
		return model.PaymentStatusPending
	}
	return status
}

func (d *paymentDomain) CheckCardPayment(ctx context.Context, accountID int64, externalID string) (*model.PaymentResult, error) {
	if accountID <= 0 {
		return nil, account.ErrInvalidAccountID
	}
	if externalID == "" {
		return nil, ErrInvalidExternalID
	}

	p, err := d.store.FindPayment(ctx, model.PaymentProviderCard, externalID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.AccountID != accountID {
		return nil, ErrPaymentNotFound
	}
	if p.Status.IsTerminal() {
		return &model.PaymentResult{Payment: p}, nil
	}
	return d.refresh(ctx, p)
}

func (d *paymentDomain) HandleCardNotification(ctx context.Context, payload []byte, signature string) (*model.PaymentResult, error) {
	if d.gateway == nil {
		return nil, ErrProviderNotAvailable
	}
	externalID, err := d.gateway.ParseNotification(payload, signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}

	p, err := d.store.FindPayment(ctx, model.PaymentProviderCard, externalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	if p.Status.IsTerminal() {
		return &model.PaymentResult{Payment: p}, nil
	}
	return d.refresh(ctx, p)
}

// refresh pulls the gateway view of p and applies it. Lookup failures are
// stored on the row so the payment stays visible as unresolved.
func (d *paymentDomain) refresh(ctx context.Context, p *model.Payment) (*model.PaymentResult, error) {
	if d.gateway == nil {
		return nil, ErrProviderNotAvailable
	}

	intent, err := d.gateway.GetPayment(ctx, p.ExternalID)
	if err != nil {
		d.logger.Warn("card gateway lookup failed",
			zap.Int64("account_id", p.AccountID),
			zap.String("external_id", p.ExternalID),
			zap.Error(err),
		)
		if recErr := d.recordLookupFailure(ctx, p, err); recErr != nil {
			d.logger.Error("failed to record gateway lookup failure",
				zap.String("external_id", p.ExternalID),
				zap.Error(recErr),
			)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return d.ApplyStatus(ctx, &model.StatusUpdate{
		ExternalID: p.ExternalID,
		Status:     string(effectiveStatus(intent)),
		Raw:        intent.Raw,
	})
}

func (d *paymentDomain) recordLookupFailure(ctx context.Context, p *model.Payment, cause error) error {
	now := d.cal.Now()
	return d.store.Atomic(ctx, p.AccountID, func(tx outbound.LedgerTx) error {
		locked, err := tx.LockPayment(p.Provider, p.ExternalID)
		if err != nil || locked == nil {
			return err
		}
		locked.LastError = cause.Error()
		locked.CheckedAt = &now
		return tx.SavePayment(locked)
	})
}

func (d *paymentDomain) ListUnresolved(ctx context.Context, olderThan time.Duration) ([]*model.Payment, error) {
	if olderThan < 0 {
		olderThan = 0
	}
	return d.store.ListUnresolvedPayments(ctx, d.cal.Now().Add(-olderThan))
}

func (d *paymentDomain) ReconcileUnresolved(ctx context.Context, olderThan time.Duration) (int, error) {
	payments, err := d.ListUnresolved(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, p := range payments {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if p.Provider != model.PaymentProviderCard {
			continue
		}
		res, err := d.refresh(ctx, p)
		if err != nil {
			d.logger.Warn("reconcile payment failed",
				zap.String("external_id", p.ExternalID),
				zap.Error(err),
			)
			continue
		}
		if res.Payment != nil && res.Payment.Status.IsTerminal() {
			resolved++
		}
	}
	return resolved, nil
}
