package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-ledger/internal/domain"
	"token-ledger/internal/storage"
)

// EntryStore implements storage.EntryStore using PostgreSQL.
type EntryStore struct {
	pool *Pool
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore(pool *Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

const insertEntryQuery = `
	INSERT INTO ledger_entries (
		entry_id, symbol, seq, kind, from_principal, to_principal, amount, timestamp_ns
	) VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8)
`

const selectEntryColumns = `
	SELECT entry_id, symbol, seq, kind, from_principal, to_principal, amount::text, timestamp_ns
	FROM ledger_entries
`

func entryArgs(e *domain.Entry) []any {
	var from *string
	if e.From != nil {
		s := e.From.String()
		from = &s
	}
	return []any{
		e.ID,
		e.Symbol,
		int64(e.Seq),
		string(e.Kind),
		from,
		e.To.String(),
		formatAmount(e.Amount),
		int64(e.Timestamp),
	}
}

// Insert adds a new entry. Returns ErrDuplicateKey if (symbol, seq) exists.
func (s *EntryStore) Insert(ctx context.Context, e *domain.Entry) error {
	if err := storage.ValidateEntry(e); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, insertEntryQuery, entryArgs(e)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// InsertBulk adds multiple entries atomically. Fails entire batch on any duplicate.
func (s *EntryStore) InsertBulk(ctx context.Context, entries []*domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := storage.ValidateEntry(e); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx, insertEntryQuery, entryArgs(e)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert entry in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Get retrieves the entry at (symbol, seq). Returns ErrNotFound if not exists.
func (s *EntryStore) Get(ctx context.Context, symbol string, seq uint64) (*domain.Entry, error) {
	query := selectEntryColumns + `
		WHERE symbol = $1 AND seq = $2
	`

	rows, err := s.pool.Query(ctx, query, symbol, int64(seq))
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
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
	query := selectEntryColumns + `
		WHERE symbol = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get entries by symbol: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// GetByPrincipal retrieves entries of a token sent or received by p, ordered by seq ASC.
func (s *EntryStore) GetByPrincipal(ctx context.Context, symbol string, p domain.Principal) ([]*domain.Entry, error) {
	query := selectEntryColumns + `
		WHERE symbol = $1 AND (from_principal = $2 OR to_principal = $2)
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, p.String())
	if err != nil {
		return nil, fmt.Errorf("get entries by principal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// scanEntries scans multiple rows into a slice of Entry.
func scanEntries(rows pgx.Rows) ([]*domain.Entry, error) {
	var entries []*domain.Entry

	for rows.Next() {
		var (
			e         domain.Entry
			seq       int64
			kind      string
			from      *string
			to        string
			amount    string
			timestamp int64
		)

		err := rows.Scan(
			&e.ID,
			&e.Symbol,
			&seq,
			&kind,
			&from,
			&to,
			&amount,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}

		value, err := parseAmount(amount)
		if err != nil {
			return nil, err
		}

		e.Seq = uint64(seq)
		e.Kind = domain.EntryKind(kind)
		if from != nil {
			sender := domain.Principal(*from)
			e.From = &sender
		}
		e.To = domain.Principal(to)
		e.Amount = value
		e.Timestamp = uint64(timestamp)

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}

	return entries, nil
}
