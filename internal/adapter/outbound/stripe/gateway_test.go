package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/talkmeter/server/internal/model"
)

// --- Helpers ---

func newTestGateway(t *testing.T, h http.HandlerFunc) *gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	g, err := NewGateway(Config{SecretKey: "sk_test_123", WebhookSecret: "whsec_test", BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)
	return g.(*gateway)
}

const openSession = `{
	"id": "cs_test_1",
	"object": "checkout.session",
	"status": "open",
	"payment_status": "unpaid",
	"amount_total": 19900,
	"currency": "rub",
	"url": "https://checkout.stripe.com/c/pay/cs_test_1"
}`

// --- Tests ---

func TestNewGateway_RequiresKey(t *testing.T) {
	_, err := NewGateway(Config{}, nil, nil)
	assert.Error(t, err)
}

func TestGateway_CreatePayment(t *testing.T) {
	var form url.Values
	var idem string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		idem = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(openSession))
	})

	intent, err := g.CreatePayment(context.Background(), &model.CardPaymentRequest{
		AccountID:      7,
		Amount:         19900,
		Currency:       "RUB",
		Description:    "30 days",
		ReturnURL:      "https://t.me/bot",
		IdempotencyKey: "idem-1",
		Metadata:       map[string]string{"account_id": "7"},
	})
	require.NoError(t, err)

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "rub", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "19900", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "7", form.Get("metadata[account_id]"))
	assert.Equal(t, "7", form.Get("client_reference_id"))
	assert.Equal(t, "idem-1", idem)

	assert.Equal(t, "cs_test_1", intent.ExternalID)
	assert.Equal(t, "pending", intent.Status)
	assert.False(t, intent.Paid)
	assert.Equal(t, "RUB", intent.Currency)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", intent.ConfirmationURL)
}

func TestGateway_GetPayment(t *testing.T) {
	tests := []struct {
		name          string
		status        string
		paymentStatus string
		want          string
		paid          bool
	}{
		{"complete and paid", "complete", "paid", "succeeded", true},
		{"complete awaiting async payment", "complete", "unpaid", "pending", false},
		{"expired", "expired", "unpaid", "canceled", false},
		{"open", "open", "unpaid", "pending", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
				_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","status":"` + tt.status +
					`","payment_status":"` + tt.paymentStatus + `","amount_total":19900,"currency":"rub"}`))
			})

			intent, err := g.GetPayment(context.Background(), "cs_test_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, intent.Status)
			assert.Equal(t, tt.paid, intent.Paid)
		})
	}

	t.Run("api error", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`))
		})

		_, err := g.GetPayment(context.Background(), "cs_missing")
		assert.Error(t, err)
	})
}

func TestGateway_ParseNotification(t *testing.T) {
	g := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_test_1","object":"checkout.session"}}}`)

	t.Run("valid signature", func(t *testing.T) {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    "whsec_test",
			Timestamp: time.Now(),
		})

		id, err := g.ParseNotification(signed.Payload, signed.Header)
		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", id)
	})

	t.Run("bad signature", func(t *testing.T) {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    "whsec_other",
			Timestamp: time.Now(),
		})

		_, err := g.ParseNotification(signed.Payload, signed.Header)
		assert.Error(t, err)
	})

	t.Run("other event types", func(t *testing.T) {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   []byte(`{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`),
			Secret:    "whsec_test",
			Timestamp: time.Now(),
		})

		_, err := g.ParseNotification(signed.Payload, signed.Header)
		assert.Error(t, err)
	})
}
