package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// EntryStore is an in-memory implementation of storage.EntryStore.
type EntryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Entry // keyed by symbol|seq
}

// NewEntryStore creates a new in-memory entry store.
func NewEntryStore() *EntryStore {
	return &EntryStore{
		data: make(map[string]*domain.Entry),
	}
}

func entryKey(symbol string, seq uint64) string {
	return fmt.Sprintf("%s|%d", symbol, seq)
}

// Insert adds a new entry. Returns ErrDuplicateKey if (symbol, seq) exists.
func (s *EntryStore) Insert(_ context.Context, e *domain.Entry) error {
	if err := storage.ValidateEntry(e); err != nil {
		return err
	}

	key := entryKey(e.Symbol, e.Seq)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := e.Clone()
	s.data[key] = &copy
	return nil
}

// InsertBulk adds multiple entries atomically. Fails entire batch on any duplicate.
func (s *EntryStore) InsertBulk(_ context.Context, entries []*domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := storage.ValidateEntry(e); err != nil {
			return err
		}
		key := entryKey(e.Symbol, e.Seq)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, e := range entries {
		copy := e.Clone()
		s.data[entryKey(e.Symbol, e.Seq)] = &copy
	}

	return nil
}

// Get retrieves the entry at (symbol, seq). Returns ErrNotFound if not exists.
func (s *EntryStore) Get(_ context.Context, symbol string, seq uint64) (*domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[entryKey(symbol, seq)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := e.Clone()
	return &copy, nil
}

// GetBySymbol retrieves all entries of a token, ordered by seq ASC.
func (s *EntryStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.Entry, error) {
	return s.filter(func(e *domain.Entry) bool {
		return e.Symbol == symbol
	}), nil
}

// GetByPrincipal retrieves entries of a token sent or received by p, ordered by seq ASC.
func (s *EntryStore) GetByPrincipal(_ context.Context, symbol string, p domain.Principal) ([]*domain.Entry, error) {
	return s.filter(func(e *domain.Entry) bool {
		if e.Symbol != symbol {
			return false
		}
		return e.To == p || (e.From != nil && *e.From == p)
	}), nil
}

func (s *EntryStore) filter(match func(*domain.Entry) bool) []*domain.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Entry
	for _, e := range s.data {
		if match(e) {
			copy := e.Clone()
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	return result
}

var _ storage.EntryStore = (*EntryStore)(nil)
