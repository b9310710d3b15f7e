package storage

import (
	"errors"

	"token-ledger/internal/domain"
)

// Storage errors for append-only stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidateEntry checks the fields every store requires of an entry.
func ValidateEntry(e *domain.Entry) error {
	if e == nil || e.Symbol == "" || e.Seq == 0 || e.ID == "" {
		return ErrInvalidInput
	}
	if e.Kind != domain.EntryKindMint && e.Kind != domain.EntryKindTransfer {
		return ErrInvalidInput
	}
	if (e.Kind == domain.EntryKindMint) != e.IsMint() {
		return ErrInvalidInput
	}
	return nil
}
