package payment

import "errors"

var (
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidCurrency is returned for an empty currency.
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrInvalidExternalID is returned for an empty provider payment id.
	ErrInvalidExternalID = errors.New("invalid external id")

	// ErrInvalidStatus is returned for an empty status update.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrPaymentNotFound is returned when a payment is not found.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidStatusTransition is returned when a terminal payment is
	// reported with a different terminal status.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrAlreadySubscribed is returned when a paid-active account tries to buy again.
	ErrAlreadySubscribed = errors.New("subscription already active")

	// ErrUnknownInvoice is returned when an invoice payload does not belong to the payer.
	ErrUnknownInvoice = errors.New("unknown invoice payload")

	// ErrProviderNotAvailable is returned when no card gateway is configured.
	ErrProviderNotAvailable = errors.New("provider not available")

	// ErrProviderUnavailable is returned when a card gateway call fails.
	// The payment stays unresolved and can be checked again.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrCheckoutInProgress is returned when another checkout or turn holds
	// the account for longer than the guard wait.
	ErrCheckoutInProgress = errors.New("checkout in progress")

	// ErrInvalidNotification is returned for webhook bodies that fail verification.
	ErrInvalidNotification = errors.New("invalid provider notification")
)
