package observability

import "token-ledger/internal/domain"

// LedgerSink counts committed ledger entries.
// It satisfies ledger.Sink.
type LedgerSink struct {
	metrics *Metrics
}

// NewLedgerSink creates a sink reporting to m.
func NewLedgerSink(m *Metrics) *LedgerSink {
	return &LedgerSink{metrics: m}
}

// TokenCreated records a new token.
func (s *LedgerSink) TokenCreated(_ domain.TokenInfo, _ domain.Entry) {
	s.metrics.TokensCreated.Inc()
	s.metrics.TokensRegistered.Inc()
}

// Transferred records a committed transfer.
func (s *LedgerSink) Transferred(entry domain.Entry) {
	s.metrics.TransfersTotal.Inc()
	s.metrics.TransferredAmount.Add(float64(entry.Amount))
}
