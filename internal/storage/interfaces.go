package storage

import (
	"context"

	"token-ledger/internal/domain"
)

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds token metadata. Returns ErrDuplicateKey if symbol exists.
	Insert(ctx context.Context, t *domain.TokenInfo) error

	// GetBySymbol retrieves a token by symbol. Returns ErrNotFound if not exists.
	GetBySymbol(ctx context.Context, symbol string) (*domain.TokenInfo, error)

	// GetAll retrieves all tokens ordered by creation time.
	GetAll(ctx context.Context) ([]*domain.TokenInfo, error)
}

// EntryStore provides access to ledger_entries storage.
type EntryStore interface {
	// Insert adds a new entry. Returns ErrDuplicateKey if (symbol, seq) exists.
	Insert(ctx context.Context, e *domain.Entry) error

	// InsertBulk adds multiple entries atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, entries []*domain.Entry) error

	// Get retrieves the entry at (symbol, seq). Returns ErrNotFound if not exists.
	Get(ctx context.Context, symbol string, seq uint64) (*domain.Entry, error)

	// GetBySymbol retrieves all entries of a token, ordered by seq ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Entry, error)

	// GetByPrincipal retrieves entries of a token sent or received by p, ordered by seq ASC.
	// A self-transfer is returned once.
	GetByPrincipal(ctx context.Context, symbol string, p domain.Principal) ([]*domain.Entry, error)
}
