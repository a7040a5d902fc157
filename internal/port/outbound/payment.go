package outbound

import (
	"context"

	"github.com/talkmeter/server/internal/model"
)

// CardGatewayPort is the external card payment provider.
type CardGatewayPort interface {
	// Name returns the gateway name stored on payment rows.
	Name() string

	// CreatePayment creates a payment intent awaiting customer confirmation.
	CreatePayment(ctx context.Context, req *model.CardPaymentRequest) (*model.CardPaymentIntent, error)

	// GetPayment fetches the gateway's current view of a payment.
	GetPayment(ctx context.Context, externalID string) (*model.CardPaymentIntent, error)

	// ParseNotification authenticates a webhook body and returns the payment id it refers to.
	ParseNotification(payload []byte, signature string) (string, error)
}

// LedgerMetricsPort records ledger events.
type LedgerMetricsPort interface {
	RecordDecision(reason string)
	RecordInteraction(paid bool)
	RecordPayment(provider, status string)
	RecordActivation(source string)
}

// NopMetrics discards all ledger events.
type NopMetrics struct{}

func (NopMetrics) RecordDecision(string) {}
func (NopMetrics) RecordInteraction(bool) {}
func (NopMetrics) RecordPayment(string, string) {}
func (NopMetrics) RecordActivation(string) {}

var _ LedgerMetricsPort = NopMetrics{}
