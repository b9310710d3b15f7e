// Package feed streams committed ledger entries to websocket subscribers.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
	"token-ledger/internal/principal"
)

// Event types
const (
	EventTokenCreated = "token_created"
	EventTransfer     = "transfer"
)

// Event is the JSON message sent to subscribers.
type Event struct {
	Type  string            `json:"type"`
	Token *domain.TokenInfo `json:"token,omitempty"`
	Entry domain.Entry      `json:"entry"`
}

// Config holds hub settings.
type Config struct {
	// ClientBuffer is the number of messages queued per subscriber before
	// further messages to it are dropped.
	ClientBuffer int
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout bounds each websocket write.
	WriteTimeout time.Duration
}

// DefaultConfig returns default hub configuration.
func DefaultConfig() Config {
	return Config{
		ClientBuffer: 256,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Hub fans ledger entries out to subscribers. It satisfies ledger.Sink.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics sets the metrics instance. Defaults to observability.DefaultMetrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithCheckOrigin overrides the upgrader origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates a hub.
func NewHub(cfg Config, opts ...Option) *Hub {
	d := DefaultConfig()
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = d.ClientBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}

	h := &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		metrics: observability.DefaultMetrics,
		logger:  zap.NewNop(),
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Filter selects the entries a subscriber receives. Zero fields match all.
type Filter struct {
	Symbol    string
	Principal domain.Principal
}

// Match reports whether e passes the filter.
func (f Filter) Match(e domain.Entry) bool {
	if f.Symbol != "" && e.Symbol != f.Symbol {
		return false
	}
	if f.Principal != "" {
		if e.To == f.Principal {
			return true
		}
		return e.From != nil && *e.From == f.Principal
	}
	return true
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
// Query parameters symbol and principal set the filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := Filter{Symbol: r.URL.Query().Get("symbol")}
	if p := r.URL.Query().Get("principal"); p != "" {
		parsed, err := principal.Parse(p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Principal = parsed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := h.register(filter)
	if c == nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	c.conn = conn

	h.logger.Info("feed subscriber connected",
		zap.String("subscriber_id", c.id),
		zap.String("symbol", filter.Symbol),
		zap.String("principal", filter.Principal.String()))

	go c.writeLoop(h.cfg)
	c.readLoop(h.cfg)

	h.unregister(c)
	h.logger.Info("feed subscriber disconnected", zap.String("subscriber_id", c.id))
}

// TokenCreated publishes a token creation and its mint entry.
func (h *Hub) TokenCreated(info domain.TokenInfo, mint domain.Entry) {
	tok := info
	h.broadcast(Event{Type: EventTokenCreated, Token: &tok, Entry: mint})
}

// Transferred publishes a transfer entry.
func (h *Hub) Transferred(entry domain.Entry) {
	h.broadcast(Event{Type: EventTransfer, Entry: entry})
}

// broadcast never blocks: a subscriber with a full buffer misses the event.
func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal feed event", zap.Error(err))
		return
	}

	for _, c := range h.clients {
		if !c.filter.Match(ev.Entry) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.metrics.FeedDropped.Inc()
			h.logger.Warn("feed subscriber too slow, event dropped",
				zap.String("subscriber_id", c.id),
				zap.String("symbol", ev.Entry.Symbol),
				zap.Uint64("seq", ev.Entry.Seq))
		}
	}
}

// register adds a subscriber. Returns nil once the hub is closed.
func (h *Hub) register(filter Filter) *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	c := &client{
		id:     uuid.NewString(),
		filter: filter,
		send:   make(chan []byte, h.cfg.ClientBuffer),
		done:   make(chan struct{}),
	}
	h.clients[c.id] = c
	h.metrics.FeedSubscribers.Set(float64(len(h.clients)))
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.metrics.FeedSubscribers.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()
	c.stop()
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.metrics.FeedSubscribers.Set(0)
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
}
