package clickhouse

import (
	"context"
	"fmt"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// EntryStore implements storage.EntryStore using ClickHouse.
// ReplacingMergeTree does not enforce uniqueness, so duplicates are
// checked explicitly before insert.
type EntryStore struct {
	conn *Conn
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore(conn *Conn) *EntryStore {
	return &EntryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

// Insert adds a new entry. Returns ErrDuplicateKey if (symbol, seq) exists.
func (s *EntryStore) Insert(ctx context.Context, e *domain.Entry) error {
	return s.InsertBulk(ctx, []*domain.Entry{e})
}

// InsertBulk adds multiple entries. Fails entire batch on any duplicate.
func (s *EntryStore) InsertBulk(ctx context.Context, entries []*domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	type key struct {
		symbol string
		seq    uint64
	}
	seen := make(map[key]struct{}, len(entries))
	for _, e := range entries {
		if err := storage.ValidateEntry(e); err != nil {
			return err
		}
		k := key{e.Symbol, e.Seq}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, e := range entries {
		exists, err := s.exists(ctx, e.Symbol, e.Seq)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_entries (
			entry_id, symbol, seq, kind, from_principal, to_principal, amount, timestamp_ns
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		var from *string
		if e.From != nil {
			v := e.From.String()
			from = &v
		}
		err = batch.Append(
			e.ID, e.Symbol, e.Seq, string(e.Kind),
			from, e.To.String(), e.Amount, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Get retrieves the entry at (symbol, seq). Returns ErrNotFound if not exists.
func (s *EntryStore) Get(ctx context.Context, symbol string, seq uint64) (*domain.Entry, error) {
	query := `
		SELECT entry_id, symbol, seq, kind, from_principal, to_principal, amount, timestamp_ns
		FROM ledger_entries FINAL
		WHERE symbol = ? AND seq = ?
		LIMIT 1
	`
	entries, err := s.query(ctx, query, symbol, seq)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, storage.ErrNotFound
	}
	return entries[0], nil
}

// GetBySymbol retrieves all entries of a token, ordered by seq ASC.
func (s *EntryStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Entry, error) {
	query := `
		SELECT entry_id, symbol, seq, kind, from_principal, to_principal, amount, timestamp_ns
		FROM ledger_entries FINAL
		WHERE symbol = ?
		ORDER BY seq ASC
	`
	return s.query(ctx, query, symbol)
}

// GetByPrincipal retrieves entries of a token sent or received by p, ordered by seq ASC.
func (s *EntryStore) GetByPrincipal(ctx context.Context, symbol string, p domain.Principal) ([]*domain.Entry, error) {
	query := `
		SELECT entry_id, symbol, seq, kind, from_principal, to_principal, amount, timestamp_ns
		FROM ledger_entries FINAL
		WHERE symbol = ? AND (from_principal = ? OR to_principal = ?)
		ORDER BY seq ASC
	`
	return s.query(ctx, query, symbol, p.String(), p.String())
}

func (s *EntryStore) query(ctx context.Context, query string, args ...any) ([]*domain.Entry, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.Entry
	for rows.Next() {
		var (
			e    domain.Entry
			kind string
			from *string
			to   string
		)
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Seq, &kind, &from, &to, &e.Amount, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		if from != nil {
			sender := domain.Principal(*from)
			e.From = &sender
		}
		e.To = domain.Principal(to)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

func (s *EntryStore) exists(ctx context.Context, symbol string, seq uint64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM ledger_entries WHERE symbol = ? AND seq = ?
	`, symbol, seq).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
