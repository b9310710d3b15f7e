package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"token-ledger/internal/domain"
)

func TestLedgerSink(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	sink := NewLedgerSink(m)

	sink.TokenCreated(domain.TokenInfo{Symbol: "GLD"}, domain.Entry{})
	sink.Transferred(domain.Entry{Transaction: domain.Transaction{Amount: 300}})
	sink.Transferred(domain.Entry{Transaction: domain.Transaction{Amount: 25}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensRegistered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransfersTotal))
	assert.Equal(t, 325.0, testutil.ToFloat64(m.TransferredAmount))
}

func TestRecordJournalFlush(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordJournalFlush("postgres", "entry", 3, time.Millisecond, nil)
	m.RecordJournalFlush("postgres", "entry", 2, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.JournalWritten.WithLabelValues("postgres", "entry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JournalWriteErrors.WithLabelValues("postgres")))
}

func TestRecordOperation(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordOperation("transfer", "ok")
	m.RecordOperation("transfer", "ok")
	m.RecordOperation("transfer", "insufficient_funds")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("transfer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("transfer", "insufficient_funds")))
}
