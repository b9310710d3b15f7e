package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds token metadata. Returns ErrDuplicateKey if symbol exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.TokenInfo) error {
	if t == nil || t.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (
			symbol, name, image_url, owner, total_supply, created_at_ns
		) VALUES ($1, $2, $3, $4, $5::text::numeric, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Symbol,
		t.Name,
		t.ImageURL,
		t.Owner.String(),
		formatAmount(t.TotalSupply),
		int64(t.CreatedAt),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetBySymbol retrieves a token by symbol. Returns ErrNotFound if not exists.
func (s *TokenStore) GetBySymbol(ctx context.Context, symbol string) (*domain.TokenInfo, error) {
	query := `
		SELECT symbol, name, image_url, owner, total_supply::text, created_at_ns
		FROM tokens
		WHERE symbol = $1
	`

	t, err := scanToken(s.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by symbol: %w", err)
	}
	return t, nil
}

// GetAll retrieves all tokens ordered by creation time.
func (s *TokenStore) GetAll(ctx context.Context) ([]*domain.TokenInfo, error) {
	query := `
		SELECT symbol, name, image_url, owner, total_supply::text, created_at_ns
		FROM tokens
		ORDER BY created_at_ns ASC, symbol ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.TokenInfo
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}

	return tokens, nil
}

func scanToken(row pgx.Row) (*domain.TokenInfo, error) {
	var (
		t         domain.TokenInfo
		owner     string
		supply    string
		createdAt int64
	)
	if err := row.Scan(&t.Symbol, &t.Name, &t.ImageURL, &owner, &supply, &createdAt); err != nil {
		return nil, err
	}

	total, err := parseAmount(supply)
	if err != nil {
		return nil, err
	}
	t.Owner = domain.Principal(owner)
	t.TotalSupply = total
	t.CreatedAt = uint64(createdAt)
	return &t, nil
}
