package domain

// Transaction is a single history record of a token.
// From is nil only for the mint that created the token.
type Transaction struct {
	From      *Principal `json:"from"`
	To        Principal  `json:"to"`
	Amount    uint64     `json:"amount"`
	Timestamp uint64     `json:"timestamp"` // nanoseconds since Unix epoch
}

// IsMint reports whether t is the initial supply credit.
func (t Transaction) IsMint() bool {
	return t.From == nil
}

// Clone returns a copy of t that shares no memory with it.
func (t Transaction) Clone() Transaction {
	if t.From != nil {
		from := *t.From
		t.From = &from
	}
	return t
}

// EntryKind classifies journal entries.
type EntryKind string

// Entry kind constants
const (
	EntryKindMint     EntryKind = "MINT"
	EntryKindTransfer EntryKind = "TRANSFER"
)

// Entry is a committed transaction as exported to the journal and the live feed.
// Unlike per-holder history, a transfer produces exactly one Entry.
// Corresponds to ledger_entries table.
type Entry struct {
	ID     string    `json:"id"`     // deterministic hash, see idhash.ComputeEntryID
	Symbol string    `json:"symbol"` // token symbol
	Seq    uint64    `json:"seq"`    // per-token sequence, mint is 1
	Kind   EntryKind `json:"kind"`
	Transaction
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	e.Transaction = e.Transaction.Clone()
	return e
}
