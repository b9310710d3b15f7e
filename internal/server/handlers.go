package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"token-ledger/internal/domain"
	"token-ledger/internal/journal"
	"token-ledger/internal/principal"
	"token-ledger/internal/verification"
)

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status          string         `json:"status"`
	Uptime          string         `json:"uptime"`
	Started         time.Time      `json:"started"`
	Initialized     bool           `json:"initialized"`
	Tokens          int            `json:"tokens"`
	FeedSubscribers int            `json:"feed_subscribers"`
	Journal         *journal.Stats `json:"journal,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Started:     s.started,
		Initialized: s.deps.Ledger.Initialized(),
		Tokens:      s.deps.Ledger.Len(),
	}
	if s.deps.Hub != nil {
		resp.FeedSubscribers = s.deps.Hub.Subscribers()
	}
	if s.deps.Exporter != nil {
		stats := s.deps.Exporter.Stats()
		resp.Journal = &stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAudit serves GET /audit/entries?symbol=&principal= from the journal.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Audit == nil {
		http.Error(w, "journal not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	var (
		entries []*domain.Entry
		err     error
	)
	if raw := q.Get("principal"); raw != "" {
		p, perr := principal.Parse(raw)
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		entries, err = s.deps.Audit.GetByPrincipal(r.Context(), symbol, p)
	} else {
		entries, err = s.deps.Audit.GetBySymbol(r.Context(), symbol)
	}
	if err != nil {
		s.logger.Error("audit query failed", zap.String("symbol", symbol), zap.Error(err))
		http.Error(w, "journal read failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*domain.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// handleVerify replays the journal against the ledger. With ?symbol= it
// verifies one token and answers 404 for unknown symbols.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Audit == nil {
		http.Error(w, "journal not configured", http.StatusServiceUnavailable)
		return
	}

	v := verification.NewVerifier(s.deps.Audit, s.deps.Ledger)

	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		info, ok := s.deps.Ledger.Token(symbol)
		if !ok {
			http.Error(w, "token not found", http.StatusNotFound)
			return
		}
		result, err := v.VerifyToken(r.Context(), info)
		if err != nil {
			s.logger.Error("verify failed", zap.String("symbol", symbol), zap.Error(err))
			http.Error(w, "journal read failed", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
		return
	}

	report, err := v.VerifyAll(r.Context())
	if err != nil {
		s.logger.Error("verify failed", zap.Error(err))
		http.Error(w, "journal read failed", http.StatusInternalServerError)
		return
	}
	if report.DivergentTokens > 0 {
		s.logger.Warn("journal diverges from ledger", zap.Int("divergent_tokens", report.DivergentTokens))
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}
