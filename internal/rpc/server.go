package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"token-ledger/internal/domain"
	"token-ledger/internal/ledger"
	"token-ledger/internal/observability"
)

// Config holds RPC server settings.
type Config struct {
	// RequireSignatures rejects unsigned mutating calls.
	RequireSignatures bool
	// MaxSkew bounds the difference between the signed timestamp and now.
	MaxSkew time.Duration
	// RateLimit is the sustained request rate per second and caller.
	// Zero disables limiting.
	RateLimit float64
	// RateBurst is the limiter bucket size.
	RateBurst int
	// MaxBodyBytes bounds the request body.
	MaxBodyBytes int64
}

// DefaultConfig returns default RPC configuration.
func DefaultConfig() Config {
	return Config{
		MaxSkew:      30 * time.Second,
		RateLimit:    100,
		RateBurst:    200,
		MaxBodyBytes: 1 << 20,
	}
}

// Server dispatches JSON-RPC calls to a ledger.
type Server struct {
	ledger  *ledger.Ledger
	cfg     Config
	limiter *limiterSet
	replays *replayGuard
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the metrics instance. Defaults to observability.DefaultMetrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithNow overrides the wall clock used for signature skew checks.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a JSON-RPC server for l.
func NewServer(l *ledger.Ledger, cfg Config, opts ...Option) *Server {
	d := DefaultConfig()
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = d.MaxSkew
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}

	s := &Server{
		ledger:  l,
		cfg:     cfg,
		metrics: observability.DefaultMetrics,
		logger:  zap.NewNop(),
		now:     time.Now,
		replays: newReplayGuard(cfg.MaxSkew),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newLimiterSet(cfg.RateLimit, cfg.RateBurst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// call carries per-request state through dispatch.
type call struct {
	caller    domain.Principal
	authErr   *Error
	signature string
	reason    string // ledger failure reason, reported in X-Ledger-Reason
}

// ServeHTTP handles POST /rpc.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	c := &call{signature: r.Header.Get(HeaderSignature)}
	c.caller, c.authErr = s.authenticate(r, body)

	// Checked before dispatch: a 429 means nothing was applied.
	if s.limiter != nil && !s.limiter.allow(limiterKey(r, c.caller), time.Now()) {
		s.metrics.RPCRateLimited.Inc()
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.write(w, requestID, nil, Response{Error: errorf(CodeParseError, "parse error: %v", err)})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.write(w, requestID, nil, Response{ID: req.ID, Error: errorf(CodeInvalidRequest, "invalid request")})
		return
	}

	start := time.Now()
	result, rpcErr := s.handle(&req, c)
	s.metrics.RecordRPCLatency(req.Method, time.Since(start))

	logger := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.Duration("duration", time.Since(start)))
	switch {
	case rpcErr != nil:
		logger.Debug("rpc call rejected", zap.Int("code", rpcErr.Code), zap.String("error", rpcErr.Message))
	case c.reason != "":
		logger.Info("ledger operation failed", zap.String("reason", c.reason))
	default:
		logger.Debug("rpc call served")
	}

	resp := Response{ID: req.ID, Result: result, Error: rpcErr}
	if rpcErr != nil {
		resp.Result = nil
	}
	s.write(w, requestID, c, resp)
}

func (s *Server) handle(req *Request, c *call) (any, *Error) {
	m, ok := methods[req.Method]
	if !ok {
		return nil, errorf(CodeMethodNotFound, "method not found: %s", req.Method)
	}

	if c.authErr != nil {
		return nil, c.authErr
	}
	if m.mutating && s.cfg.RequireSignatures && c.caller == "" {
		return nil, errorf(CodeUnauthorized, "%s requires a signed request", req.Method)
	}
	// A signed mutation is accepted once.
	if m.mutating && c.caller != "" && !s.replays.claim(c.caller, c.signature, s.now()) {
		s.metrics.RPCReplayed.Inc()
		return nil, errorf(CodeUnauthorized, "signed request already processed")
	}

	return m.fn(s, req.Params, c)
}

func (s *Server) write(w http.ResponseWriter, requestID string, c *call, resp Response) {
	resp.JSONRPC = "2.0"
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	if c != nil && c.reason != "" {
		w.Header().Set(HeaderReason, c.reason)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		s.logger.Error("encode rpc response", zap.String("request_id", requestID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
