package ledger

import (
	"fmt"

	"go.uber.org/zap"

	"token-ledger/internal/domain"
)

// Transfer moves amount of symbol from one holder to another on behalf of caller.
//
// Checks run in order and nothing is mutated when one fails:
// ErrNotInitialized, ErrTokenNotFound, ErrUnauthorized (caller != from),
// ErrInsufficientFunds (absent balance counts as zero).
//
// On success one transaction is appended to both the sender's and the
// receiver's history. A self-transfer appends two copies to the same history.
func (l *Ledger) Transfer(caller domain.Principal, symbol string, from, to domain.Principal, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tokens == nil {
		return ErrNotInitialized
	}
	t, ok := l.tokens[symbol]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTokenNotFound, symbol)
	}
	if caller != from {
		return ErrUnauthorized
	}
	balance := t.balances[from]
	if balance < amount {
		return fmt.Errorf("%w: balance %d, amount %d", ErrInsufficientFunds, balance, amount)
	}

	t.balances[from] -= amount
	t.balances[to] += amount

	sender := from
	tx := domain.Transaction{
		From:      &sender,
		To:        to,
		Amount:    amount,
		Timestamp: l.now(),
	}
	t.record(from, tx)
	t.record(to, tx)
	entry := t.nextEntry(domain.EntryKindTransfer, tx)

	l.log().Debug("transfer committed",
		zap.String("symbol", symbol),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint64("amount", amount),
		zap.Uint64("seq", entry.Seq))

	for _, s := range l.sinks {
		s.Transferred(entry)
	}
	return nil
}
