package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/talkmeter/server/internal/domain/payment"
	"github.com/talkmeter/server/internal/port/inbound"
	"go.uber.org/zap"
)

const (
	// stripeSignatureHeader carries the Stripe webhook signature.
	stripeSignatureHeader = "Stripe-Signature"
	// webhookSecretQuery carries the shared secret for providers that cannot
	// sign requests.
	webhookSecretQuery = "secret"
)

// webhookAdapter implements inbound.WebhookHttpPort.
type webhookAdapter struct {
	domain payment.PaymentDomain
	logger *zap.Logger
}

// NewWebhookAdapter creates a new provider webhook adapter.
func NewWebhookAdapter(domain payment.PaymentDomain, logger *zap.Logger) inbound.WebhookHttpPort {
	return &webhookAdapter{domain: domain, logger: logger}
}

// RegisterRoutes registers webhook routes.
func (a *webhookAdapter) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/card", a.CardNotification)
}

func (a *webhookAdapter) CardNotification(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		badRequest(c, "invalid_input", err.Error())
		return
	}

	signature := c.GetHeader(stripeSignatureHeader)
	if signature == "" {
		signature = c.Query(webhookSecretQuery)
	}

	res, err := a.domain.HandleCardNotification(c.Request.Context(), payload, signature)
	switch {
	case errors.Is(err, payment.ErrPaymentNotFound):
		// Not ours or already deleted. Acknowledge so the provider stops retrying.
		a.logger.Warn("notification for unknown payment")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	case err != nil:
		a.logger.Warn("card notification rejected", zap.Error(err))
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "processed",
		"external_id":    res.Payment.ExternalID,
		"activated":      res.Activated,
		"payment_status": res.Payment.Status,
	})
}
