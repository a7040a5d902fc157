package account

import "errors"

// Domain errors for accounts.
var (
	// ErrInvalidAccountID is returned for non-positive account ids.
	ErrInvalidAccountID = errors.New("invalid account id")

	// ErrAccountNotFound is returned when an operation requires an existing account.
	// It is terminal: retrying will not make the account appear.
	ErrAccountNotFound = errors.New("account not found")
)
