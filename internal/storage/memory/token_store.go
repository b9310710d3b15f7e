package memory

import (
	"context"
	"sort"
	"sync"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenInfo
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]*domain.TokenInfo),
	}
}

// Insert adds token metadata. Returns ErrDuplicateKey if symbol exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.TokenInfo) error {
	if t == nil || t.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Symbol]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.Symbol] = &copy
	return nil
}

// GetBySymbol retrieves a token by symbol. Returns ErrNotFound if not exists.
func (s *TokenStore) GetBySymbol(_ context.Context, symbol string) (*domain.TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[symbol]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *t
	return &copy, nil
}

// GetAll retrieves all tokens ordered by creation time.
func (s *TokenStore) GetAll(_ context.Context) ([]*domain.TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenInfo, 0, len(s.data))
	for _, t := range s.data {
		copy := *t
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Symbol < result[j].Symbol
	})

	return result, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
