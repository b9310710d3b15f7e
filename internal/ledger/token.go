package ledger

import (
	"token-ledger/internal/domain"
	"token-ledger/internal/idhash"
)

// token is the ledger-internal record of one asset.
// Invariant: the sum of balances equals info.TotalSupply.
type token struct {
	info     domain.TokenInfo
	balances map[domain.Principal]uint64
	history  map[domain.Principal][]domain.Transaction
	seq      uint64 // last assigned entry sequence
}

func newToken(info domain.TokenInfo) *token {
	return &token{
		info:     info,
		balances: make(map[domain.Principal]uint64),
		history:  make(map[domain.Principal][]domain.Transaction),
	}
}

// record appends a private copy of tx to the history of p.
func (t *token) record(p domain.Principal, tx domain.Transaction) {
	t.history[p] = append(t.history[p], tx.Clone())
}

// nextEntry numbers tx and wraps it for sinks.
func (t *token) nextEntry(kind domain.EntryKind, tx domain.Transaction) domain.Entry {
	t.seq++
	return domain.Entry{
		ID:          idhash.ComputeEntryID(t.info.Symbol, t.seq, tx),
		Symbol:      t.info.Symbol,
		Seq:         t.seq,
		Kind:        kind,
		Transaction: tx.Clone(),
	}
}
