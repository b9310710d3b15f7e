package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
	"token-ledger/internal/storage"
)

// target owns the retry backlog and breaker of one Target.
type target struct {
	Target
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
	drop    func(n int) // counts records that will never be written

	mu      sync.Mutex
	pending []record
}

func newTarget(t Target, m *observability.Metrics, logger *zap.Logger, drop func(n int)) *target {
	tg := &target{
		Target:  t,
		metrics: m,
		logger:  logger.With(zap.String("target", t.Name)),
		drop:    drop,
	}
	tg.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "journal-" + t.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.SetBreakerState(t.Name, int(to))
			tg.logger.Warn("journal breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	m.SetBreakerState(t.Name, int(gobreaker.StateClosed))
	return tg
}

// add appends batch to the backlog, dropping the oldest records beyond max.
func (t *target) add(batch []record, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = append(t.pending, batch...)
	if over := len(t.pending) - max; over > 0 {
		t.pending = append([]record(nil), t.pending[over:]...)
		t.drop(over)
		t.logger.Error("journal backlog overflow, oldest entries dropped", zap.Int("dropped", over))
	}
}

func (t *target) backlog() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// write tries to persist the whole backlog through the breaker.
// The backlog is kept on failure and retried on the next flush.
func (t *target) write(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) == 0 {
		return
	}

	start := time.Now()
	var conflicts []conflict
	_, err := t.breaker.Execute(func() (interface{}, error) {
		var err error
		conflicts, err = t.persist(ctx, t.pending)
		return nil, err
	})
	t.metrics.RecordJournalFlush(t.Name, "entry", len(t.pending)-len(conflicts), time.Since(start), err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			t.logger.Debug("journal write skipped, breaker open", zap.Int("pending", len(t.pending)))
			return
		}
		t.logger.Warn("journal write failed", zap.Int("pending", len(t.pending)), zap.Error(err))
		return
	}

	for _, c := range conflicts {
		t.metrics.JournalConflicts.WithLabelValues(t.Name).Inc()
		t.logger.Error("journal entry conflicts with stored entry, not written",
			zap.String("symbol", c.symbol),
			zap.Uint64("seq", c.seq),
			zap.String("entry_id", c.id),
			zap.String("stored_id", c.storedID))
	}
	if len(conflicts) > 0 {
		t.drop(len(conflicts))
	}

	t.logger.Debug("journal batch written", zap.Int("records", len(t.pending)-len(conflicts)))
	t.pending = nil
}

// conflict is an entry whose (symbol, seq) is already stored under another
// id, typically left by an earlier process lifetime.
type conflict struct {
	symbol   string
	seq      uint64
	id       string
	storedID string
}

// persist writes tokens before entries so readers never see an entry of an
// unknown token. A stored entry with the same id is skipped, which makes a
// retried batch idempotent. A stored entry with another id is reported as a
// conflict and the new one is not written.
func (t *target) persist(ctx context.Context, records []record) ([]conflict, error) {
	entries := make([]*domain.Entry, 0, len(records))
	for i := range records {
		r := &records[i]
		if r.token != nil && t.Tokens != nil {
			if err := t.Tokens.Insert(ctx, r.token); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return nil, fmt.Errorf("insert token %q: %w", r.token.Symbol, err)
			}
		}
		entries = append(entries, &r.entry)
	}

	err := t.Entries.InsertBulk(ctx, entries)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("insert entries: %w", err)
	}

	// Part of the batch is already stored. Fall back to single inserts and
	// compare what collides.
	var conflicts []conflict
	for _, e := range entries {
		err := t.Entries.Insert(ctx, e)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("insert entry %s/%d: %w", e.Symbol, e.Seq, err)
		}
		stored, err := t.Entries.Get(ctx, e.Symbol, e.Seq)
		if err != nil {
			return nil, fmt.Errorf("load stored entry %s/%d: %w", e.Symbol, e.Seq, err)
		}
		if stored.ID != e.ID {
			conflicts = append(conflicts, conflict{symbol: e.Symbol, seq: e.Seq, id: e.ID, storedID: stored.ID})
		}
	}
	return conflicts, nil
}
