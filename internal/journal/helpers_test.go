package journal

import (
	"fmt"

	"token-ledger/internal/domain"
)

func testEntry(symbol string, seq uint64) *domain.Entry {
	from := domain.Principal("alice")
	return &domain.Entry{
		ID:     fmt.Sprintf("%s-%d", symbol, seq),
		Symbol: symbol,
		Seq:    seq,
		Kind:   domain.EntryKindTransfer,
		Transaction: domain.Transaction{
			From:      &from,
			To:        "bob",
			Amount:    seq,
			Timestamp: 1000 + seq,
		},
	}
}
