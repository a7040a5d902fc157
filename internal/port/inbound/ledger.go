package inbound

import "github.com/gin-gonic/gin"

// AccountHttpPort defines HTTP handler interface for the conversation layer.
type AccountHttpPort interface {
	// Turn handles POST /v1/accounts/:id/turns
	Turn(c *gin.Context)

	// GetStatus handles GET /v1/accounts/:id
	GetStatus(c *gin.Context)

	// RegisterRoutes mounts the handlers on r.
	RegisterRoutes(r *gin.RouterGroup)
}

// PaymentHttpPort defines HTTP handler interface for both payment channels.
type PaymentHttpPort interface {
	// CreateTokenInvoice handles POST /v1/accounts/:id/invoices/token
	CreateTokenInvoice(c *gin.Context)

	// ConfirmTokenPayment handles POST /v1/payments/token
	ConfirmTokenPayment(c *gin.Context)

	// StartCardCheckout handles POST /v1/accounts/:id/payments/card
	StartCardCheckout(c *gin.Context)

	// CheckCardPayment handles POST /v1/accounts/:id/payments/card/:external_id/check
	CheckCardPayment(c *gin.Context)

	// RegisterRoutes mounts the handlers on r.
	RegisterRoutes(r *gin.RouterGroup)
}

// WebhookHttpPort defines HTTP handler interface for provider callbacks.
type WebhookHttpPort interface {
	// CardNotification handles POST /webhooks/card
	CardNotification(c *gin.Context)

	// RegisterRoutes mounts the handlers on r.
	RegisterRoutes(r *gin.RouterGroup)
}

// LedgerAdminPort defines admin interface for ledger management.
type LedgerAdminPort interface {
	// ListAccounts handles GET /admin/accounts
	ListAccounts(c *gin.Context)

	// GetAccount handles GET /admin/accounts/:id
	GetAccount(c *gin.Context)

	// GrantSubscription handles POST /admin/accounts/:id/grant
	GrantSubscription(c *gin.Context)

	// ResetToFree handles POST /admin/accounts/:id/reset
	ResetToFree(c *gin.Context)

	// DeleteAccount handles DELETE /admin/accounts/:id
	DeleteAccount(c *gin.Context)

	// ListUnresolvedPayments handles GET /admin/payments/unresolved
	ListUnresolvedPayments(c *gin.Context)

	// GetDialogText handles GET /admin/accounts/:id/dialog
	GetDialogText(c *gin.Context)

	// SaveSummary handles PUT /admin/accounts/:id/summary
	SaveSummary(c *gin.Context)

	// RegisterRoutes mounts the handlers on r.
	RegisterRoutes(r *gin.RouterGroup)
}
