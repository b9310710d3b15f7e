package ledger

import (
	"fmt"

	"go.uber.org/zap"

	"token-ledger/internal/domain"
)

// CreateToken registers a new token and credits its whole supply to owner.
// The owner's history starts with a single mint transaction (From == nil).
// Strings are not validated. Returns ErrDuplicateSymbol if symbol is taken
// and ErrNotInitialized before Init.
func (l *Ledger) CreateToken(owner domain.Principal, name, symbol, imageURL string, totalSupply uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tokens == nil {
		l.log().Warn("create_token on uninitialized ledger", zap.String("symbol", symbol))
		return ErrNotInitialized
	}
	if _, exists := l.tokens[symbol]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSymbol, symbol)
	}

	now := l.now()
	t := newToken(domain.TokenInfo{
		Name:        name,
		Symbol:      symbol,
		ImageURL:    imageURL,
		Owner:       owner,
		TotalSupply: totalSupply,
		CreatedAt:   now,
	})

	mint := domain.Transaction{
		From:      nil,
		To:        owner,
		Amount:    totalSupply,
		Timestamp: now,
	}
	t.balances[owner] = totalSupply
	t.record(owner, mint)
	entry := t.nextEntry(domain.EntryKindMint, mint)

	l.tokens[symbol] = t
	l.order = append(l.order, symbol)

	l.log().Info("token minted",
		zap.String("symbol", symbol),
		zap.String("owner", owner.String()),
		zap.Uint64("total_supply", totalSupply))

	for _, s := range l.sinks {
		s.TokenCreated(t.info, entry)
	}
	return nil
}
