package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/domain/chat"
	"github.com/talkmeter/server/internal/domain/payment"
	"github.com/talkmeter/server/internal/domain/summary"
	"github.com/talkmeter/server/internal/port/outbound"
	apperrors "github.com/talkmeter/server/internal/shared/errors"
)

// retryAfterSeconds is sent with every retryable error.
const retryAfterSeconds = "5"

// toAppError maps domain errors to stable HTTP errors.
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, account.ErrInvalidAccountID):
		return apperrors.BadRequest("invalid_account_id", "Invalid account ID")
	case errors.Is(err, account.ErrAccountNotFound):
		return apperrors.NotFound("account_not_found", "Account not found")

	case errors.Is(err, chat.ErrEmptyText):
		return apperrors.BadRequest("empty_text", "Message text is empty")
	case errors.Is(err, chat.ErrTurnInProgress):
		return apperrors.Conflict("turn_in_progress", "Another message is being answered")
	case errors.Is(err, chat.ErrGenerationFailed):
		return apperrors.BadGateway("generation_failed", "Reply generation failed", err)

	case errors.Is(err, payment.ErrInvalidAmount):
		return apperrors.BadRequest("invalid_amount", "Amount must be positive")
	case errors.Is(err, payment.ErrInvalidCurrency):
		return apperrors.BadRequest("invalid_currency", "Currency is required")
	case errors.Is(err, payment.ErrInvalidExternalID):
		return apperrors.BadRequest("invalid_external_id", "External payment ID is required")
	case errors.Is(err, payment.ErrInvalidStatus):
		return apperrors.BadRequest("invalid_status", "Payment status is required")
	case errors.Is(err, payment.ErrUnknownInvoice):
		return apperrors.BadRequest("unknown_invoice", "Invoice payload does not match the payer")
	case errors.Is(err, payment.ErrInvalidNotification):
		return apperrors.BadRequest("invalid_notification", "Notification failed verification")
	case errors.Is(err, payment.ErrPaymentNotFound):
		return apperrors.NotFound("payment_not_found", "Payment not found")
	case errors.Is(err, payment.ErrInvalidStatusTransition):
		return apperrors.Conflict("invalid_status_transition", "Payment already reached a different final status")
	case errors.Is(err, payment.ErrAlreadySubscribed):
		return apperrors.Conflict("already_subscribed", "Subscription is already active")
	case errors.Is(err, payment.ErrCheckoutInProgress):
		return apperrors.Conflict("checkout_in_progress", "Another checkout is being prepared")
	case errors.Is(err, payment.ErrProviderNotAvailable):
		return apperrors.NotFound("provider_not_available", "Card payments are not configured")
	case errors.Is(err, payment.ErrProviderUnavailable):
		return apperrors.Unavailable("provider_unavailable", "Payment provider is unavailable, try again later", err)

	case errors.Is(err, summary.ErrEmptySummary):
		return apperrors.BadRequest("empty_summary", "Summary text is empty")

	case errors.Is(err, outbound.ErrStorageUnavailable):
		return apperrors.Unavailable("storage_unavailable", "Storage is unavailable, try again later", err)

	default:
		return apperrors.Internal("", err)
	}
}

// handleError maps domain errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	appErr := toAppError(err)
	status := apperrors.GetStatusCode(appErr)
	if status >= 500 {
		_ = c.Error(err)
	}
	if apperrors.IsRetryable(appErr) {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(status, appErr.ToResponse())
}

// badRequest writes an input error that never reached the domain.
func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
