// Package stripe implements the card gateway on Stripe Checkout Sessions.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/talkmeter/server/internal/infra/httpclient"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
)

// Config holds Stripe credentials.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API endpoint; used against stripe-mock and in tests.
	BaseURL string
	// ProductName is shown on the checkout page.
	ProductName string
}

// gateway implements outbound.CardGatewayPort.
type gateway struct {
	api           *client.API
	webhookSecret string
	productName   string
	breaker       *httpclient.Breaker
}

// NewGateway creates a Stripe gateway with its own client; the global
// stripe.Key is left untouched.
func NewGateway(cfg Config, httpClient *http.Client, breaker *httpclient.Breaker) (outbound.CardGatewayPort, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	if breaker == nil {
		breaker = httpclient.NewBreaker("stripe", httpclient.BreakerConfig{}, nil)
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "Subscription"
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}

	return &gateway{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		productName:   cfg.ProductName,
		breaker:       breaker,
	}, nil
}

func (g *gateway) Name() string {
	return "stripe"
}

func (g *gateway) CreatePayment(ctx context.Context, req *model.CardPaymentRequest) (*model.CardPaymentIntent, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.ReturnURL),
		CancelURL:         stripe.String(req.ReturnURL),
		ClientReferenceID: stripe.String(fmt.Sprintf("%d", req.AccountID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(g.productName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := httpclient.Call(g.breaker, func() (*stripe.CheckoutSession, error) {
		return g.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return toIntent(sess), nil
}

func (g *gateway) GetPayment(ctx context.Context, externalID string) (*model.CardPaymentIntent, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := httpclient.Call(g.breaker, func() (*stripe.CheckoutSession, error) {
		return g.api.CheckoutSessions.Get(externalID, params)
	})
	if err != nil {
		return nil, fmt.Errorf("get checkout session %s: %w", externalID, err)
	}
	return toIntent(sess), nil
}

// ParseNotification verifies the Stripe-Signature header and returns the
// checkout session id of checkout.session.* events.
func (g *gateway) ParseNotification(payload []byte, signature string) (string, error) {
	if g.webhookSecret == "" {
		return "", errors.New("stripe: webhook secret not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return "", fmt.Errorf("stripe: verify webhook: %w", err)
	}
	if !strings.HasPrefix(string(event.Type), "checkout.session.") || event.Data == nil {
		return "", fmt.Errorf("stripe: unsupported event %q", event.Type)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", fmt.Errorf("stripe: decode session: %w", err)
	}
	if sess.ID == "" {
		return "", errors.New("stripe: event without session id")
	}
	return sess.ID, nil
}

// toIntent maps a checkout session onto ledger statuses: a completed paid
// session succeeded, an expired one was canceled, anything else is pending.
func toIntent(sess *stripe.CheckoutSession) *model.CardPaymentIntent {
	intent := &model.CardPaymentIntent{
		ExternalID:      sess.ID,
		Status:          string(model.PaymentStatusPending),
		Paid:            sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:          sess.AmountTotal,
		Currency:        strings.ToUpper(string(sess.Currency)),
		ConfirmationURL: sess.URL,
	}
	switch sess.Status {
	case stripe.CheckoutSessionStatusComplete:
		if intent.Paid {
			intent.Status = string(model.PaymentStatusSucceeded)
		}
	case stripe.CheckoutSessionStatusExpired:
		intent.Status = string(model.PaymentStatusCanceled)
		intent.CancellationReason = "expired"
	}
	if sess.LastResponse != nil {
		intent.Raw = sess.LastResponse.RawJSON
	}
	return intent
}

// Compile-time check
var _ outbound.CardGatewayPort = (*gateway)(nil)
