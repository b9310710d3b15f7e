// Package server assembles the ledger HTTP surfaces and runs them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"token-ledger/internal/feed"
	"token-ledger/internal/journal"
	"token-ledger/internal/ledger"
	"token-ledger/internal/observability"
	"token-ledger/internal/rpc"
	"token-ledger/internal/storage"
)

// Config holds listener settings.
type Config struct {
	Addr            string
	MetricsAddr     string // empty disables the metrics listener
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Deps are the components served. Exporter and Audit may be nil.
type Deps struct {
	Ledger   *ledger.Ledger
	RPC      http.Handler
	Hub      *feed.Hub
	Exporter *journal.Exporter
	Audit    storage.EntryStore
}

// Server serves /rpc, /ws, /audit/entries, /audit/verify, /health and
// /status on the main listener and /metrics on its own listener.
type Server struct {
	cfg     Config
	deps    Deps
	metrics http.Handler
	logger  *zap.Logger
	started time.Time

	mu        sync.Mutex
	listeners []net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler replaces the /metrics handler. Defaults to observability.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a server.
func New(cfg Config, deps Deps, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: observability.Handler(),
		logger:  zap.NewNop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the main listener's handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/rpc", s.deps.RPC)
	mux.Handle("/ws", s.deps.Hub)
	mux.HandleFunc("/audit/entries", s.handleAudit)
	mux.HandleFunc("/audit/verify", s.handleVerify)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", rpc.HeaderPrincipal, rpc.HeaderTimestamp, rpc.HeaderSignature, rpc.HeaderRequestID},
		ExposedHeaders: []string{rpc.HeaderReason, rpc.HeaderRequestID},
	})
	return c.Handler(mux)
}

// MetricsHandler returns the metrics listener's handler.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics)
	return mux
}

// Run listens on the configured addresses and serves until ctx is done,
// then shuts both listeners down and closes the feed.
func (s *Server) Run(ctx context.Context) error {
	api := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*http.Server{api}
	if s.cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              s.cfg.MetricsAddr,
			Handler:           s.MetricsHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		listeners = append(listeners, ln)
	}
	s.mu.Lock()
	s.listeners = listeners
	s.mu.Unlock()

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		s.logger.Info("listening", zap.String("addr", listeners[i].Addr().String()))
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv, listeners[i])
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.logger.Error("http server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	// Websocket connections are hijacked and not tracked by Shutdown.
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	s.logger.Info("http servers stopped")
	return runErr
}

// Addrs returns the bound listener addresses once Run has started listening.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, len(s.listeners))
	for i, l := range s.listeners {
		addrs[i] = l.Addr()
	}
	return addrs
}
