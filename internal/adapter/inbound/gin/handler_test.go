package gin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/talkmeter/server/internal/adapter/outbound/memory"
	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/domain/admin"
	"github.com/talkmeter/server/internal/domain/chat"
	"github.com/talkmeter/server/internal/domain/payment"
	"github.com/talkmeter/server/internal/domain/summary"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/utils/clock"
	"github.com/talkmeter/server/internal/utils/middleware"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Mock Implementations ---

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, text, history string) (string, error) {
	args := m.Called(ctx, text, history)
	return args.String(0), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "mockpay" }

func (m *MockGateway) CreatePayment(ctx context.Context, req *model.CardPaymentRequest) (*model.CardPaymentIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CardPaymentIntent), args.Error(1)
}

func (m *MockGateway) GetPayment(ctx context.Context, externalID string) (*model.CardPaymentIntent, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CardPaymentIntent), args.Error(1)
}

func (m *MockGateway) ParseNotification(payload []byte, signature string) (string, error) {
	args := m.Called(payload, signature)
	return args.String(0), args.Error(1)
}

// --- Helpers ---

const testAdminID = int64(900)

type server struct {
	router  *gin.Engine
	store   *memory.Store
	gen     *MockGenerator
	gateway *MockGateway
	token   string
}

func newServer(t *testing.T) *server {
	t.Helper()
	m := clock.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cal, err := clock.NewCalendar(m, "UTC")
	require.NoError(t, err)

	log := zap.NewNop()
	store := memory.NewStore()
	gen := new(MockGenerator)
	gateway := new(MockGateway)
	acctCfg := account.DefaultConfig()

	accounts := account.NewAccountDomain(store, cal, acctCfg, nil, log)
	guard := memory.NewGuard(time.Second)
	chats := chat.NewChatDomain(accounts, guard, gen, chat.NewAckFilter(chat.DefaultAckWords), chat.DefaultConfig(), log)
	payments := payment.NewPaymentDomain(store, gateway, guard, cal, payment.DefaultConfig(), nil, log)
	admins := admin.NewAdminDomain(store, nil, cal, acctCfg, nil, log)
	summaries := summary.NewSummaryDomain(store, gen, summary.DefaultConfig(), log)

	tokens := middleware.NewAdminTokens("test-secret", []int64{testAdminID})
	token, err := tokens.Issue(testAdminID, time.Hour)
	require.NoError(t, err)

	router := gin.New()
	NewSystemAdapter(prometheus.NewRegistry(), HealthCheck{
		Name:  "store",
		Check: func(context.Context) error { return nil },
	}).RegisterRoutes(router)
	NewWebhookAdapter(payments, log).RegisterRoutes(&router.RouterGroup)
	v1 := router.Group("/v1")
	NewAccountAdapter(accounts, chats).RegisterRoutes(v1)
	NewPaymentAdapter(payments).RegisterRoutes(v1)
	adminGroup := router.Group("", middleware.RequireAdmin(tokens))
	NewLedgerAdminAdapter(admins, summaries, cal, 30*time.Minute).RegisterRoutes(adminGroup)

	t.Cleanup(chats.Wait)
	return &server{router: router, store: store, gen: gen, gateway: gateway, token: token}
}

func (s *server) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, body, middleware.AuthorizationHeader, middleware.BearerPrefix+s.token)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, w)["code"].(string)
}

// --- Tests ---

func TestAccountAdapter(t *testing.T) {
	t.Run("turn answers and status reflects it", func(t *testing.T) {
		s := newServer(t)
		s.gen.On("Generate", mock.Anything, "hello", "").Return("hi there", nil).Once()

		w := s.do(t, http.MethodPost, "/v1/accounts/42/turns", gin.H{"text": "hello", "username": "neo"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		res := decode[chat.TurnResult](t, w)
		assert.True(t, res.Allowed)
		assert.Equal(t, "hi there", res.Reply)

		w = s.do(t, http.MethodGet, "/v1/accounts/42", nil)
		require.Equal(t, http.StatusOK, w.Code)
		status := decode[model.AccountStatus](t, w)
		assert.Equal(t, int64(42), status.AccountID)
		assert.Equal(t, 1, status.RequestsToday)
		assert.Equal(t, 4, *status.QuotaRemaining)
	})

	t.Run("denial carries reason code", func(t *testing.T) {
		s := newServer(t)
		s.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("ok", nil)
		for i := 0; i < 5; i++ {
			w := s.do(t, http.MethodPost, "/v1/accounts/7/turns", gin.H{"text": "ok"})
			require.Equal(t, http.StatusOK, w.Code)
		}

		w := s.do(t, http.MethodPost, "/v1/accounts/7/turns", gin.H{"text": "ok"})
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[chat.TurnResult](t, w)
		assert.False(t, res.Allowed)
		assert.Equal(t, account.ReasonQuotaExhausted, res.Reason)
	})

	t.Run("generation failure is a bad gateway", func(t *testing.T) {
		s := newServer(t)
		s.gen.On("Generate", mock.Anything, "hello", "").Return("", errors.New("upstream down")).Once()

		w := s.do(t, http.MethodPost, "/v1/accounts/1/turns", gin.H{"text": "hello"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "generation_failed", errorCode(t, w))
	})

	t.Run("invalid input", func(t *testing.T) {
		s := newServer(t)

		w := s.do(t, http.MethodPost, "/v1/accounts/abc/turns", gin.H{"text": "hello"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_account_id", errorCode(t, w))

		w = s.do(t, http.MethodPost, "/v1/accounts/-3/turns", gin.H{"text": "hello"})
		assert.Equal(t, "invalid_account_id", errorCode(t, w))

		w = s.do(t, http.MethodPost, "/v1/accounts/1/turns", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_input", errorCode(t, w))

		w = s.do(t, http.MethodPost, "/v1/accounts/1/turns", gin.H{"text": "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "empty_text", errorCode(t, w))
	})
}

func TestPaymentAdapter_Token(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/v1/accounts/5/invoices/token", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	invoice := decode[model.Invoice](t, w)
	assert.Equal(t, int64(100), invoice.Amount)
	assert.Equal(t, "XTR", invoice.Currency)

	confirm := gin.H{
		"account_id":  5,
		"external_id": "charge-1",
		"amount":      invoice.Amount,
		"currency":    invoice.Currency,
		"payload":     invoice.Payload,
	}
	w = s.do(t, http.MethodPost, "/v1/payments/token", confirm)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[model.PaymentResult](t, w)
	assert.True(t, res.Inserted)
	assert.True(t, res.Activated)

	// Replays are acknowledged without a second activation.
	w = s.do(t, http.MethodPost, "/v1/payments/token", confirm)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[model.PaymentResult](t, w)
	assert.False(t, res.Inserted)
	assert.False(t, res.Activated)

	w = s.do(t, http.MethodPost, "/v1/accounts/5/invoices/token", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_subscribed", errorCode(t, w))

	t.Run("foreign payload", func(t *testing.T) {
		bad := gin.H{"account_id": 6, "external_id": "charge-2", "amount": 100, "currency": "XTR", "payload": invoice.Payload}
		w := s.do(t, http.MethodPost, "/v1/payments/token", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "unknown_invoice", errorCode(t, w))
	})

	t.Run("missing fields", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/payments/token", gin.H{"account_id": 5})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_input", errorCode(t, w))
	})
}

func TestPaymentAdapter_Card(t *testing.T) {
	s := newServer(t)
	s.gateway.On("CreatePayment", mock.Anything, mock.Anything).Return(&model.CardPaymentIntent{
		ExternalID:      "pay-1",
		Status:          "pending",
		ConfirmationURL: "https://pay.example/confirm/pay-1",
	}, nil).Once()

	w := s.do(t, http.MethodPost, "/v1/accounts/8/payments/card", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	checkout := decode[model.Checkout](t, w)
	assert.False(t, checkout.Reused)
	assert.Equal(t, "https://pay.example/confirm/pay-1", checkout.ConfirmationURL)

	w = s.do(t, http.MethodPost, "/v1/accounts/8/payments/card", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.Checkout](t, w).Reused)

	s.gateway.On("GetPayment", mock.Anything, "pay-1").Return(nil, errors.New("timeout")).Once()
	w = s.do(t, http.MethodPost, "/v1/accounts/8/payments/card/pay-1/check", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "provider_unavailable", errorCode(t, w))

	s.gateway.On("GetPayment", mock.Anything, "pay-1").Return(&model.CardPaymentIntent{
		ExternalID: "pay-1", Status: "succeeded", Paid: true,
	}, nil).Once()
	w = s.do(t, http.MethodPost, "/v1/accounts/8/payments/card/pay-1/check", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[model.PaymentResult](t, w)
	assert.Equal(t, model.PaymentStatusSucceeded, res.Payment.Status)
	assert.True(t, res.Activated)

	w = s.do(t, http.MethodPost, "/v1/accounts/9/payments/card/pay-1/check", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "payment_not_found", errorCode(t, w))
	s.gateway.AssertExpectations(t)
}

func TestWebhookAdapter(t *testing.T) {
	s := newServer(t)
	s.gateway.On("CreatePayment", mock.Anything, mock.Anything).Return(&model.CardPaymentIntent{
		ExternalID: "pay-7", Status: "pending",
	}, nil).Once()
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/accounts/3/payments/card", nil).Code)

	body := `{"type":"notification","event":"payment.succeeded","object":{"id":"pay-7"}}`

	t.Run("stripe signature header", func(t *testing.T) {
		s.gateway.On("ParseNotification", []byte(body), "t=1,v1=abc").Return("pay-7", nil).Once()
		s.gateway.On("GetPayment", mock.Anything, "pay-7").Return(&model.CardPaymentIntent{
			ExternalID: "pay-7", Status: "succeeded", Paid: true,
		}, nil).Once()

		w := s.do(t, http.MethodPost, "/webhooks/card", body, "Stripe-Signature", "t=1,v1=abc")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decode[map[string]any](t, w)
		assert.Equal(t, "processed", got["status"])
		assert.Equal(t, true, got["activated"])
	})

	t.Run("secret query and unknown payment", func(t *testing.T) {
		s.gateway.On("ParseNotification", []byte(body), "s3cr3t").Return("pay-unknown", nil).Once()

		w := s.do(t, http.MethodPost, "/webhooks/card?secret=s3cr3t", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ignored", decode[map[string]any](t, w)["status"])
	})

	t.Run("rejected signature", func(t *testing.T) {
		s.gateway.On("ParseNotification", []byte(body), "").Return("", errors.New("bad signature")).Once()

		w := s.do(t, http.MethodPost, "/webhooks/card", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_notification", errorCode(t, w))
	})
}

func TestLedgerAdminAdapter(t *testing.T) {
	s := newServer(t)
	s.gen.On("Generate", mock.Anything, "hi", "").Return("fine", nil).Once()
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/accounts/11/turns", gin.H{"text": "hi"}).Code)

	t.Run("requires admin token", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/admin/accounts", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("list and get", func(t *testing.T) {
		w := s.admin(t, http.MethodGet, "/admin/accounts?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		list := decode[struct {
			Accounts []*model.Account `json:"accounts"`
			Limit    int              `json:"limit"`
		}](t, w)
		require.Len(t, list.Accounts, 1)
		assert.Equal(t, int64(11), list.Accounts[0].ID)
		assert.Equal(t, 10, list.Limit)

		w = s.admin(t, http.MethodGet, "/admin/accounts/11", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, decode[model.Account](t, w).RequestsToday)

		w = s.admin(t, http.MethodGet, "/admin/accounts/12", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "account_not_found", errorCode(t, w))
	})

	t.Run("grant and reset", func(t *testing.T) {
		w := s.admin(t, http.MethodPost, "/admin/accounts/11/grant", nil)
		require.Equal(t, http.StatusOK, w.Code)
		acc := decode[model.Account](t, w)
		assert.True(t, acc.Subscribed)
		require.NotNil(t, acc.SubscriptionEnds)
		assert.True(t, clock.Date(2024, 3, 31).Equal(*acc.SubscriptionEnds))

		w = s.admin(t, http.MethodPost, "/admin/accounts/11/reset", nil)
		require.Equal(t, http.StatusOK, w.Code)
		acc = decode[model.Account](t, w)
		assert.False(t, acc.Subscribed)
		assert.Equal(t, 5, *acc.QuotaRemaining)
	})

	t.Run("dialog and summary", func(t *testing.T) {
		w := s.admin(t, http.MethodGet, "/admin/accounts/11/dialog?day=2024-03-01", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "USER: hi\nBOT: fine", decode[map[string]any](t, w)["text"])

		w = s.admin(t, http.MethodGet, "/admin/accounts/11/dialog?day=01.03.2024", nil)
		assert.Equal(t, "invalid_day", errorCode(t, w))

		w = s.admin(t, http.MethodPut, "/admin/accounts/11/summary", gin.H{"day": "2024-03-01", "text": "calm day"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decode[map[string]any](t, w)["saved"])

		w = s.admin(t, http.MethodPut, "/admin/accounts/11/summary", gin.H{"day": "2024-02-01", "text": "nothing"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decode[map[string]any](t, w)["saved"])
	})

	t.Run("unresolved payments", func(t *testing.T) {
		w := s.admin(t, http.MethodGet, "/admin/payments/unresolved?older_than=0s", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"payments"`)

		w = s.admin(t, http.MethodGet, "/admin/payments/unresolved?older_than=soon", nil)
		assert.Equal(t, "invalid_duration", errorCode(t, w))
	})

	t.Run("delete", func(t *testing.T) {
		w := s.admin(t, http.MethodDelete, "/admin/accounts/11", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = s.admin(t, http.MethodGet, "/admin/accounts/11", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSystemAdapter(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newServer(t)
		w := s.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decode[map[string]any](t, w)["status"])

		w = s.do(t, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("degraded", func(t *testing.T) {
		router := gin.New()
		NewSystemAdapter(nil, HealthCheck{
			Name:  "db",
			Check: func(context.Context) error { return errors.New("connection refused") },
		}).RegisterRoutes(router)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
