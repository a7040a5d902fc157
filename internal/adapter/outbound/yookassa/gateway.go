// Package yookassa implements the card gateway on the YooKassa v3 REST API.
package yookassa

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/talkmeter/server/internal/infra/httpclient"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/utils/money"
)

const defaultBaseURL = "https://api.yookassa.ru/v3"

// Config holds shop credentials.
type Config struct {
	BaseURL   string
	ShopID    string
	SecretKey string
	// WebhookSecret, when set, must be presented with every notification.
	WebhookSecret string
	// ForceBankCard restricts the checkout to bank cards.
	ForceBankCard bool
}

// gateway implements outbound.CardGatewayPort.
type gateway struct {
	cfg     Config
	client  *http.Client
	breaker *httpclient.Breaker
}

// NewGateway creates a YooKassa gateway.
func NewGateway(cfg Config, client *http.Client, breaker *httpclient.Breaker) (outbound.CardGatewayPort, error) {
	if cfg.ShopID == "" || cfg.SecretKey == "" {
		return nil, errors.New("yookassa: shop id and secret key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = http.DefaultClient
	}
	if breaker == nil {
		breaker = httpclient.NewBreaker("yookassa", httpclient.BreakerConfig{}, nil)
	}
	return &gateway{cfg: cfg, client: client, breaker: breaker}, nil
}

func (g *gateway) Name() string {
	return "yookassa"
}

// --- Wire types ---

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createRequest struct {
	Amount            amount            `json:"amount"`
	Capture           bool              `json:"capture"`
	Confirmation      confirmation      `json:"confirmation"`
	Description       string            `json:"description,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	PaymentMethodData *paymentMethod    `json:"payment_method_data,omitempty"`
}

type paymentMethod struct {
	Type string `json:"type"`
}

type paymentObject struct {
	ID                  string        `json:"id"`
	Status              string        `json:"status"`
	Paid                bool          `json:"paid"`
	Amount              amount        `json:"amount"`
	Confirmation        *confirmation `json:"confirmation,omitempty"`
	CancellationDetails *struct {
		Party  string `json:"party"`
		Reason string `json:"reason"`
	} `json:"cancellation_details,omitempty"`
}

type notification struct {
	Type   string        `json:"type"`
	Event  string        `json:"event"`
	Object paymentObject `json:"object"`
}

// --- Operations ---

func (g *gateway) CreatePayment(ctx context.Context, req *model.CardPaymentRequest) (*model.CardPaymentIntent, error) {
	body := createRequest{
		Amount:       amount{Value: money.FromMinor(req.Amount, req.Currency), Currency: req.Currency},
		Capture:      true,
		Confirmation: confirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Description:  req.Description,
		Metadata:     req.Metadata,
	}
	if g.cfg.ForceBankCard {
		body.PaymentMethodData = &paymentMethod{Type: "bank_card"}
	}

	raw, err := g.do(ctx, http.MethodPost, "/payments", req.IdempotencyKey, body)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return decodeIntent(raw)
}

func (g *gateway) GetPayment(ctx context.Context, externalID string) (*model.CardPaymentIntent, error) {
	raw, err := g.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(externalID), "", nil)
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", externalID, err)
	}
	return decodeIntent(raw)
}

func (g *gateway) ParseNotification(payload []byte, signature string) (string, error) {
	if g.cfg.WebhookSecret != "" &&
		subtle.ConstantTimeCompare([]byte(signature), []byte(g.cfg.WebhookSecret)) != 1 {
		return "", errors.New("yookassa: notification secret mismatch")
	}

	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return "", fmt.Errorf("yookassa: decode notification: %w", err)
	}
	if n.Type != "notification" || !strings.HasPrefix(n.Event, "payment.") || n.Object.ID == "" {
		return "", fmt.Errorf("yookassa: unsupported notification %q", n.Event)
	}
	return n.Object.ID, nil
}

// do sends one API request through the breaker and returns the raw body.
func (g *gateway) do(ctx context.Context, method, path, idempotenceKey string, body any) ([]byte, error) {
	return httpclient.Call(g.breaker, func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal request: %w", err)
			}
			reader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth(g.cfg.ShopID, g.cfg.SecretKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idempotenceKey != "" {
			req.Header.Set("Idempotence-Key", idempotenceKey)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("API error (status %d, request %s): %s",
				resp.StatusCode, resp.Header.Get("Request-Id"), string(respBody))
		}
		return respBody, nil
	})
}

func decodeIntent(raw []byte) (*model.CardPaymentIntent, error) {
	var p paymentObject
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	if p.ID == "" {
		return nil, errors.New("payment without id")
	}

	intent := &model.CardPaymentIntent{
		ExternalID: p.ID,
		Status:     p.Status,
		Paid:       p.Paid,
		Currency:   p.Amount.Currency,
		Raw:        raw,
	}
	if p.Amount.Value != "" {
		minor, err := money.ToMinor(p.Amount.Value, p.Amount.Currency)
		if err != nil {
			return nil, err
		}
		intent.Amount = minor
	}
	if p.Confirmation != nil {
		intent.ConfirmationURL = p.Confirmation.ConfirmationURL
	}
	if p.CancellationDetails != nil {
		intent.CancellationReason = p.CancellationDetails.Party + ":" + p.CancellationDetails.Reason
	}
	return intent, nil
}

// Compile-time check
var _ outbound.CardGatewayPort = (*gateway)(nil)
