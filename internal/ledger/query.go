package ledger

import "token-ledger/internal/domain"

// BalanceOf returns the balance of user, or 0 for unknown tokens and holders.
func (l *Ledger) BalanceOf(symbol string, user domain.Principal) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tokens[symbol]
	if !ok {
		return 0
	}
	return t.balances[user]
}

// TotalSupply returns the supply fixed at creation, or 0 for unknown tokens.
func (l *Ledger) TotalSupply(symbol string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tokens[symbol]
	if !ok {
		return 0
	}
	return t.info.TotalSupply
}

// TokenList returns metadata of every token in creation order.
func (l *Ledger) TokenList() []domain.TokenInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := make([]domain.TokenInfo, 0, len(l.order))
	for _, symbol := range l.order {
		list = append(list, l.tokens[symbol].info)
	}
	return list
}

// Token returns metadata of a single token.
func (l *Ledger) Token(symbol string) (domain.TokenInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tokens[symbol]
	if !ok {
		return domain.TokenInfo{}, false
	}
	return t.info, true
}

// Transactions returns the history of user in append order.
// The result is a deep copy and never nil.
func (l *Ledger) Transactions(symbol string, user domain.Principal) []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tokens[symbol]
	if !ok {
		return []domain.Transaction{}
	}

	history := t.history[user]
	result := make([]domain.Transaction, len(history))
	for i, tx := range history {
		result[i] = tx.Clone()
	}
	return result
}

// Holders returns the balance table of a token, including zero entries of
// holders that have transacted. Nil for unknown tokens.
func (l *Ledger) Holders(symbol string) map[domain.Principal]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tokens[symbol]
	if !ok {
		return nil
	}
	holders := make(map[domain.Principal]uint64, len(t.balances))
	for p, b := range t.balances {
		holders[p] = b
	}
	return holders
}

// Snapshot returns the balance table of a token together with the sequence
// number of the last entry it reflects. Seq is 0 for unknown tokens.
func (l *Ledger) Snapshot(symbol string) (holders map[domain.Principal]uint64, seq uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tokens[symbol]
	if !ok {
		return nil, 0
	}
	holders = make(map[domain.Principal]uint64, len(t.balances))
	for p, b := range t.balances {
		holders[p] = b
	}
	return holders, t.seq
}
