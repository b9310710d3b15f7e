// Package ledger implements the multi-asset token ledger: minting, transfers
// and per-holder history.
//
// A Ledger is an explicitly owned instance. Each public operation holds the
// ledger lock for its whole duration, so a balance check and the debit that
// follows it can never interleave with another operation.
package ledger

import (
	"sync"

	"go.uber.org/zap"

	"token-ledger/internal/clock"
	"token-ledger/internal/domain"
)

// Sink receives committed ledger entries in commit order.
// Sinks are called with the ledger lock held and must not block.
type Sink interface {
	TokenCreated(info domain.TokenInfo, mint domain.Entry)
	Transferred(entry domain.Entry)
}

// Ledger maps token symbols to tokens.
// The zero value is uninitialized: writes fail with ErrNotInitialized and
// reads return zero values until Init is called.
type Ledger struct {
	mu     sync.RWMutex
	tokens map[string]*token // nil until Init
	order  []string          // symbols in creation order

	clock  clock.Clock
	sinks  []Sink
	logger *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the timestamp source. Defaults to clock.NewMonotonic().
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithSink registers a sink for committed entries.
func WithSink(s Sink) Option {
	return func(l *Ledger) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates an initialized ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{}
	for _, opt := range opts {
		opt(l)
	}
	l.Init()
	return l
}

// Init resets the ledger to an empty registry.
// It is destructive: every token, balance and history entry recorded so far
// is discarded. Sinks are not notified.
func (l *Ledger) Init() {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := len(l.tokens)
	l.tokens = make(map[string]*token)
	l.order = nil

	l.log().Info("ledger initialized", zap.Int("dropped_tokens", dropped))
}

// Initialized reports whether Init has run.
func (l *Ledger) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tokens != nil
}

// Len returns the number of registered tokens.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tokens)
}

// now must be called with the write lock held.
func (l *Ledger) now() uint64 {
	if l.clock == nil {
		l.clock = clock.NewMonotonic()
	}
	return l.clock.Now()
}

func (l *Ledger) log() *zap.Logger {
	if l.logger == nil {
		return zap.NewNop()
	}
	return l.logger
}
