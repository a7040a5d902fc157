package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PaymentStatus is the provider-reported state of a payment. Statuses other
// than the three below are kept verbatim and treated as unresolved.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

// IsTerminal returns true if the status is a terminal state.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusCanceled
}

// CanTransitionTo returns true if the status can move to target.
// Repeating the current status is allowed and is a no-op for callers.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	if s == target {
		return true
	}
	return !s.IsTerminal()
}

// PaymentProvider tells the two payment channels apart.
type PaymentProvider string

const (
	// PaymentProviderToken is the in-platform token currency. Events arrive confirmed.
	PaymentProviderToken PaymentProvider = "token"
	// PaymentProviderCard is the external card gateway. Intents start pending.
	PaymentProviderCard PaymentProvider = "card"
)

// Valid reports whether p is a known provider.
func (p PaymentProvider) Valid() bool {
	return p == PaymentProviderToken || p == PaymentProviderCard
}

// Payment is a ledger row keyed uniquely by (Provider, ExternalID).
type Payment struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID       int64           `json:"account_id" gorm:"not null;index"`
	Provider        PaymentProvider `json:"provider" gorm:"type:varchar(16);not null;uniqueIndex:idx_payments_provider_external,priority:1"`
	ExternalID      string          `json:"external_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_payments_provider_external,priority:2"`
	Gateway         string          `json:"gateway,omitempty" gorm:"type:varchar(32)"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty" gorm:"type:varchar(64)"`
	Amount          int64           `json:"amount" gorm:"not null"`
	Currency        string          `json:"currency" gorm:"type:varchar(8);not null"`
	Status          PaymentStatus   `json:"status" gorm:"type:varchar(32);not null;index"`
	Payload         string          `json:"payload,omitempty" gorm:"type:varchar(255)"`
	ConfirmationURL string          `json:"confirmation_url,omitempty" gorm:"type:text"`
	Raw             datatypes.JSON  `json:"raw,omitempty"`
	LastError       string          `json:"last_error,omitempty" gorm:"type:text"`
	CheckedAt       *time.Time      `json:"checked_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CanceledAt      *time.Time      `json:"canceled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;index"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the table name.
func (Payment) TableName() string {
	return "payments"
}

// Clone returns a deep copy.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.Raw != nil {
		c.Raw = append(datatypes.JSON(nil), p.Raw...)
	}
	c.CheckedAt = cloneTime(p.CheckedAt)
	c.PaidAt = cloneTime(p.PaidAt)
	c.CanceledAt = cloneTime(p.CanceledAt)
	return &c
}

// ConfirmedPaymentInput is a token-currency payment already settled by the platform.
type ConfirmedPaymentInput struct {
	AccountID  int64  `json:"account_id"`
	ExternalID string `json:"external_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Payload    string `json:"payload"`
	Raw        []byte `json:"-"`
}

// PendingPaymentInput is a freshly created card payment intent.
type PendingPaymentInput struct {
	AccountID       int64  `json:"account_id"`
	ExternalID      string `json:"external_id"`
	Gateway         string `json:"gateway"`
	IdempotencyKey  string `json:"idempotency_key"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ConfirmationURL string `json:"confirmation_url"`
	Payload         string `json:"payload"`
	Raw             []byte `json:"-"`
}

// StatusUpdate is a provider status observation for a card payment.
type StatusUpdate struct {
	ExternalID string     `json:"external_id"`
	Status     string     `json:"status"`
	Raw        []byte     `json:"-"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
}

// PaymentResult is the outcome of recording a payment.
type PaymentResult struct {
	Payment   *Payment `json:"payment"`
	Account   *Account `json:"account,omitempty"`
	Inserted  bool     `json:"inserted"`
	Activated bool     `json:"activated"`
}

// Invoice is what the conversation layer shows for a token-currency purchase.
type Invoice struct {
	AccountID   int64  `json:"account_id"`
	Payload     string `json:"payload"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Checkout is the result of starting a card payment.
type Checkout struct {
	Payment         *Payment `json:"payment"`
	ConfirmationURL string   `json:"confirmation_url"`
	Reused          bool     `json:"reused"`
}

// CardPaymentRequest asks the card gateway to create a payment.
type CardPaymentRequest struct {
	AccountID      int64
	Amount         int64
	Currency       string
	Description    string
	ReturnURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// CardPaymentIntent is the gateway's view of a card payment.
type CardPaymentIntent struct {
	ExternalID         string
	Status             string
	Paid               bool
	Amount             int64
	Currency           string
	ConfirmationURL    string
	CancellationReason string
	Raw                []byte
}
