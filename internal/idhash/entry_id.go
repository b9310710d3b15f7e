package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"token-ledger/internal/domain"
)

// ComputeEntryID computes a deterministic entry_id using SHA256.
// Formula: SHA256(symbol|seq|from|to|amount|timestamp), from is empty for mints.
// Returns hex-encoded hash (64 characters).
func ComputeEntryID(symbol string, seq uint64, tx domain.Transaction) string {
	fromStr := ""
	if tx.From != nil {
		fromStr = string(*tx.From)
	}

	data := fmt.Sprintf("%s|%d|%s|%s|%d|%d",
		symbol,
		seq,
		fromStr,
		tx.To,
		tx.Amount,
		tx.Timestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
