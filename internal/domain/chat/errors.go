package chat

import "errors"

var (
	// ErrEmptyText is returned for a turn without text.
	ErrEmptyText = errors.New("empty message text")

	// ErrTurnInProgress is returned when another turn of the same account
	// holds the guard past the wait budget.
	ErrTurnInProgress = errors.New("another turn is in progress")

	// ErrGenerationFailed is returned when the generator fails. No quota is consumed.
	ErrGenerationFailed = errors.New("generation failed")
)
