package ledger

import "errors"

// Ledger errors. Every failed operation leaves the ledger unchanged.
var (
	// ErrNotInitialized is returned when an operation runs before Init.
	ErrNotInitialized = errors.New("ledger not initialized")

	// ErrTokenNotFound is returned when a symbol is not registered.
	ErrTokenNotFound = errors.New("token not found")

	// ErrDuplicateSymbol is returned when creating a token under a symbol
	// that is already registered. Existing tokens are never replaced.
	ErrDuplicateSymbol = errors.New("duplicate token symbol")

	// ErrUnauthorized is returned when the caller is not the sender of a transfer.
	ErrUnauthorized = errors.New("caller is not the sender")

	// ErrInsufficientFunds is returned when the sender balance is below the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
