// Package journal exports committed ledger entries to durable stores.
//
// The journal is write-only: nothing ever reads it back into a ledger.
// The Exporter receives entries through the ledger.Sink interface, queues
// them without blocking the ledger, and writes them in batches to every
// configured target. Each target has its own circuit breaker and its own
// retry backlog, so a slow ClickHouse never holds back Postgres.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
	"token-ledger/internal/storage"
)

// Target is a named pair of stores written by the exporter.
// Tokens may be nil for stores that only keep entries.
type Target struct {
	Name    string
	Tokens  storage.TokenStore
	Entries storage.EntryStore
}

// Config controls batching and buffering.
type Config struct {
	BufferSize    int           // capacity of the inbound queue
	BatchSize     int           // flush when this many records are buffered
	FlushInterval time.Duration // flush at least this often
	MaxPending    int           // per-target retry backlog, oldest dropped beyond it
	FlushTimeout  time.Duration // deadline for the final flush on shutdown
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		BufferSize:    4096,
		BatchSize:     256,
		FlushInterval: time.Second,
		MaxPending:    100000,
		FlushTimeout:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.MaxPending <= 0 {
		c.MaxPending = d.MaxPending
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = d.FlushTimeout
	}
	return c
}

// record is one queued unit. token is set only for mints.
type record struct {
	token *domain.TokenInfo
	entry domain.Entry
}

// Stats is a snapshot of exporter state.
type Stats struct {
	Queued  int               `json:"queued"`
	Dropped uint64            `json:"dropped"`
	Pending map[string]int    `json:"pending"`
	Breaker map[string]string `json:"breaker"`
}

// Exporter batches ledger entries into storage targets.
type Exporter struct {
	cfg     Config
	queue   chan record
	targets []*target
	metrics *observability.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	dropped uint64
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithMetrics sets the metrics instance. Defaults to observability.DefaultMetrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Exporter) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// NewExporter creates an exporter writing to targets.
func NewExporter(cfg Config, targets []Target, opts ...Option) (*Exporter, error) {
	if len(targets) == 0 {
		return nil, errors.New("journal: no targets")
	}
	cfg = cfg.withDefaults()

	e := &Exporter{
		cfg:     cfg,
		queue:   make(chan record, cfg.BufferSize),
		metrics: observability.DefaultMetrics,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if t.Name == "" || t.Entries == nil {
			return nil, fmt.Errorf("journal: target %q needs a name and an entry store", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("journal: duplicate target %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		e.targets = append(e.targets, newTarget(t, e.metrics, e.logger, e.recordDropped))
	}

	return e, nil
}

// TokenCreated queues a token and its mint entry.
func (e *Exporter) TokenCreated(info domain.TokenInfo, mint domain.Entry) {
	tok := info
	e.enqueue(record{token: &tok, entry: mint.Clone()})
}

// Transferred queues a transfer entry.
func (e *Exporter) Transferred(entry domain.Entry) {
	e.enqueue(record{entry: entry.Clone()})
}

// enqueue never blocks. A full queue drops the record.
func (e *Exporter) enqueue(r record) {
	select {
	case e.queue <- r:
		e.metrics.JournalQueueSize.Set(float64(len(e.queue)))
	default:
		e.recordDropped(1)
		e.logger.Warn("journal queue full, entry dropped",
			zap.String("symbol", r.entry.Symbol),
			zap.Uint64("seq", r.entry.Seq))
	}
}

// recordDropped counts n records that will not reach some target.
func (e *Exporter) recordDropped(n int) {
	e.mu.Lock()
	e.dropped += uint64(n)
	e.mu.Unlock()
	e.metrics.JournalDropped.Add(float64(n))
}

// Run consumes the queue until ctx is cancelled, then drains what is left
// and performs a final flush bounded by FlushTimeout.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]record, 0, e.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			batch = e.drain(batch)
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.FlushTimeout)
			e.flush(flushCtx, batch)
			cancel()
			e.logger.Info("journal stopped", zap.Any("stats", e.Stats()))
			return nil

		case r := <-e.queue:
			batch = append(batch, r)
			if len(batch) >= e.cfg.BatchSize {
				e.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			e.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (e *Exporter) drain(batch []record) []record {
	for {
		select {
		case r := <-e.queue:
			batch = append(batch, r)
		default:
			return batch
		}
	}
}

// flush hands batch to every target and lets each write its backlog.
func (e *Exporter) flush(ctx context.Context, batch []record) {
	e.metrics.JournalQueueSize.Set(float64(len(e.queue)))
	for _, t := range e.targets {
		t.add(batch, e.cfg.MaxPending)
		t.write(ctx)
	}
}

// Stats returns a snapshot of queue and target state.
func (e *Exporter) Stats() Stats {
	e.mu.Lock()
	dropped := e.dropped
	e.mu.Unlock()

	s := Stats{
		Queued:  len(e.queue),
		Dropped: dropped,
		Pending: make(map[string]int, len(e.targets)),
		Breaker: make(map[string]string, len(e.targets)),
	}
	for _, t := range e.targets {
		s.Pending[t.Name] = t.backlog()
		s.Breaker[t.Name] = t.breaker.State().String()
	}
	return s
}
