// Package verification replays journaled entries and checks them against the
// live ledger. Per token it checks that:
//   - sequence numbers run 1..n without gaps
//   - entry 1 is the mint of the whole supply and no other entry is a mint
//   - every entry ID matches its recomputed hash
//   - no replayed transfer overdraws its sender
//   - replayed balances equal ledger balances, once the journal has caught up
package verification

import (
	"context"
	"fmt"

	"token-ledger/internal/domain"
	"token-ledger/internal/idhash"
	"token-ledger/internal/storage"
)

// LedgerView is the read side of the ledger used for comparison.
type LedgerView interface {
	TokenList() []domain.TokenInfo
	Snapshot(symbol string) (holders map[domain.Principal]uint64, seq uint64)
}

// FieldDivergence represents a mismatch between the journal and the ledger.
type FieldDivergence struct {
	Field    string `json:"field"`
	Seq      uint64 `json:"seq,omitempty"` // offending entry, 0 for token-level fields
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

// VerificationResult contains the result of verifying a single token.
type VerificationResult struct {
	Symbol      string            `json:"symbol"`
	Match       bool              `json:"match"`
	Journaled   uint64            `json:"journaled"` // entries replayed
	LedgerSeq   uint64            `json:"ledger_seq"`
	Lagging     bool              `json:"lagging"` // journal behind the ledger, balances not compared
	Divergences []FieldDivergence `json:"divergences,omitempty"`
}

// VerificationReport contains results for all tokens.
type VerificationReport struct {
	TotalTokens     int                  `json:"total_tokens"`
	MatchedTokens   int                  `json:"matched_tokens"`
	LaggingTokens   int                  `json:"lagging_tokens"`
	DivergentTokens int                  `json:"divergent_tokens"`
	Results         []VerificationResult `json:"results"`
}

// Verifier compares an entry store against a ledger.
type Verifier struct {
	entries storage.EntryStore
	ledger  LedgerView
}

// NewVerifier creates a Verifier.
func NewVerifier(entries storage.EntryStore, ledger LedgerView) *Verifier {
	return &Verifier{entries: entries, ledger: ledger}
}

// VerifyToken replays the journal of one token.
func (v *Verifier) VerifyToken(ctx context.Context, info domain.TokenInfo) (*VerificationResult, error) {
	entries, err := v.entries.GetBySymbol(ctx, info.Symbol)
	if err != nil {
		return nil, fmt.Errorf("load entries of %s: %w", info.Symbol, err)
	}

	// Entries are loaded first so a concurrent commit shows up as lag.
	holders, seq := v.ledger.Snapshot(info.Symbol)
	balances, divergences := Replay(info, entries)

	result := &VerificationResult{
		Symbol:      info.Symbol,
		Journaled:   uint64(len(entries)),
		LedgerSeq:   seq,
		Divergences: divergences,
	}

	switch {
	case result.Journaled > result.LedgerSeq:
		result.Divergences = append(result.Divergences, FieldDivergence{
			Field:    "EntryCount",
			Expected: result.LedgerSeq,
			Actual:   result.Journaled,
		})
	case result.Journaled < result.LedgerSeq:
		result.Lagging = true
	default:
		result.Divergences = append(result.Divergences, compareBalances(holders, balances)...)
	}

	result.Match = len(result.Divergences) == 0
	return result, nil
}

// VerifyAll verifies every token of the ledger in creation order.
// Lagging tokens without divergences count as lagging, not matched.
func (v *Verifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	tokens := v.ledger.TokenList()
	report := &VerificationReport{
		TotalTokens: len(tokens),
		Results:     make([]VerificationResult, 0, len(tokens)),
	}

	for _, info := range tokens {
		result, err := v.VerifyToken(ctx, info)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, *result)
		switch {
		case !result.Match:
			report.DivergentTokens++
		case result.Lagging:
			report.LaggingTokens++
		default:
			report.MatchedTokens++
		}
	}

	return report, nil
}

// Replay rebuilds balances from entries ordered by seq and reports every
// structural divergence found on the way.
func Replay(info domain.TokenInfo, entries []*domain.Entry) (map[domain.Principal]uint64, []FieldDivergence) {
	balances := make(map[domain.Principal]uint64)
	var divergences []FieldDivergence

	for i, e := range entries {
		want := uint64(i + 1)
		if e.Seq != want {
			divergences = append(divergences, FieldDivergence{Field: "Seq", Seq: e.Seq, Expected: want, Actual: e.Seq})
		}

		if id := idhash.ComputeEntryID(e.Symbol, e.Seq, e.Transaction); id != e.ID {
			divergences = append(divergences, FieldDivergence{Field: "ID", Seq: e.Seq, Expected: id, Actual: e.ID})
		}

		if e.IsMint() {
			if i != 0 {
				divergences = append(divergences, FieldDivergence{Field: "Kind", Seq: e.Seq, Expected: domain.EntryKindTransfer, Actual: e.Kind})
				continue
			}
			if e.Amount != info.TotalSupply {
				divergences = append(divergences, FieldDivergence{Field: "MintAmount", Seq: e.Seq, Expected: info.TotalSupply, Actual: e.Amount})
			}
			if e.To != info.Owner {
				divergences = append(divergences, FieldDivergence{Field: "MintOwner", Seq: e.Seq, Expected: info.Owner, Actual: e.To})
			}
			balances[e.To] += e.Amount
			continue
		}

		if i == 0 {
			divergences = append(divergences, FieldDivergence{Field: "Kind", Seq: e.Seq, Expected: domain.EntryKindMint, Actual: e.Kind})
		}

		from := *e.From
		if balances[from] < e.Amount {
			divergences = append(divergences, FieldDivergence{Field: "Balance", Seq: e.Seq, Expected: e.Amount, Actual: balances[from]})
			continue
		}
		balances[from] -= e.Amount
		balances[e.To] += e.Amount
	}

	return balances, divergences
}

// compareBalances reports holders whose non-zero balances differ.
func compareBalances(ledger, replayed map[domain.Principal]uint64) []FieldDivergence {
	var divergences []FieldDivergence
	for p, want := range ledger {
		if got := replayed[p]; got != want {
			divergences = append(divergences, FieldDivergence{Field: "Balance:" + p.String(), Expected: want, Actual: got})
		}
	}
	for p, got := range replayed {
		if _, ok := ledger[p]; !ok && got != 0 {
			divergences = append(divergences, FieldDivergence{Field: "Balance:" + p.String(), Expected: uint64(0), Actual: got})
		}
	}
	return divergences
}
