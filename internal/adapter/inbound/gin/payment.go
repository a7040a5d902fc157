package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/talkmeter/server/internal/domain/payment"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/inbound"
	"github.com/talkmeter/server/internal/utils/middleware"
)

// paymentAdapter implements inbound.PaymentHttpPort.
type paymentAdapter struct {
	domain payment.PaymentDomain
}

// NewPaymentAdapter creates a new payment HTTP adapter.
func NewPaymentAdapter(domain payment.PaymentDomain) inbound.PaymentHttpPort {
	return &paymentAdapter{domain: domain}
}

// RegisterRoutes registers payment routes.
func (a *paymentAdapter) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/token", a.ConfirmTokenPayment)

	accounts := r.Group("/accounts/:id")
	{
		accounts.POST("/invoices/token", a.CreateTokenInvoice)
		accounts.POST("/payments/card", a.StartCardCheckout)
		accounts.POST("/payments/card/:external_id/check", a.CheckCardPayment)
	}
}

func (a *paymentAdapter) CreateTokenInvoice(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	invoice, err := a.domain.NewTokenInvoice(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invoice)
}

// tokenPaymentRequest is the platform's settled payment callback.
type tokenPaymentRequest struct {
	AccountID  int64  `json:"account_id" binding:"required"`
	ExternalID string `json:"external_id" binding:"required"`
	Amount     int64  `json:"amount" binding:"required"`
	Currency   string `json:"currency" binding:"required"`
	Payload    string `json:"payload"`
}

func (a *paymentAdapter) ConfirmTokenPayment(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "invalid_input", err.Error())
		return
	}

	var req tokenPaymentRequest
	if err := binding.JSON.BindBody(raw, &req); err != nil {
		badRequest(c, "invalid_input", err.Error())
		return
	}
	c.Set(middleware.AccountIDKey, req.AccountID)

	res, err := a.domain.RecordConfirmedPayment(c.Request.Context(), &model.ConfirmedPaymentInput{
		AccountID:  req.AccountID,
		ExternalID: req.ExternalID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Payload:    req.Payload,
		Raw:        raw,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusOK
	if res.Inserted {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (a *paymentAdapter) StartCardCheckout(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	checkout, err := a.domain.StartCardCheckout(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusCreated
	if checkout.Reused {
		status = http.StatusOK
	}
	c.JSON(status, checkout)
}

func (a *paymentAdapter) CheckCardPayment(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	res, err := a.domain.CheckCardPayment(c.Request.Context(), id, c.Param("external_id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
