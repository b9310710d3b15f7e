package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"token-ledger/internal/ledger"
	"token-ledger/internal/observability"
	"token-ledger/internal/principal"
	"token-ledger/internal/rpc"
)

func newLedgerServer(t *testing.T, requireSignatures bool) (*ledger.Ledger, *httptest.Server) {
	t.Helper()
	l := ledger.New()
	srv := rpc.NewServer(l, rpc.Config{RequireSignatures: requireSignatures},
		rpc.WithMetrics(observability.NewMetrics("test", prometheus.NewRegistry())))
	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)
	return l, server
}

func mustKeypair(t *testing.T) *principal.Keypair {
	t.Helper()
	kp, err := principal.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return kp
}

func TestHTTPClient_LedgerRoundTrip(t *testing.T) {
	_, server := newLedgerServer(t, true)
	aliceKey, bobKey := mustKeypair(t), mustKeypair(t)
	alice, bob := aliceKey.Principal(), bobKey.Principal()

	c := NewHTTPClient(server.URL, WithKeypair(aliceKey))
	ctx := context.Background()

	if err := c.CreateToken(ctx, alice, "Gold", "GLD", "img", 1000); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if err := c.Transfer(ctx, "GLD", alice, bob, 300); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	balance, err := c.BalanceOf(ctx, "GLD", alice)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if balance != 700 {
		t.Errorf("expected balance 700, got %d", balance)
	}

	supply, err := c.TotalSupply(ctx, "GLD")
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if supply != 1000 {
		t.Errorf("expected supply 1000, got %d", supply)
	}

	list, err := c.TokenList(ctx)
	if err != nil {
		t.Fatalf("TokenList: %v", err)
	}
	if len(list) != 1 || list[0] != (TokenSummary{Name: "Gold", Symbol: "GLD", ImageURL: "img"}) {
		t.Errorf("unexpected token list: %+v", list)
	}

	history, err := c.Transactions(ctx, "GLD", bob)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(history) != 1 || history[0].From == nil || *history[0].From != alice {
		t.Errorf("unexpected history: %+v", history)
	}

	info, err := c.Token(ctx, "GLD")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if info == nil || info.Owner != alice {
		t.Errorf("unexpected token info: %+v", info)
	}

	missing, err := c.Token(ctx, "NOPE")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown token, got %+v", missing)
	}
}

func TestHTTPClient_LedgerRejection(t *testing.T) {
	_, server := newLedgerServer(t, true)
	aliceKey, bobKey := mustKeypair(t), mustKeypair(t)
	ctx := context.Background()

	alice := NewHTTPClient(server.URL, WithKeypair(aliceKey))
	if err := alice.CreateToken(ctx, aliceKey.Principal(), "Gold", "GLD", "img", 10); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	// Bob signs a transfer out of alice's balance.
	bob := NewHTTPClient(server.URL, WithKeypair(bobKey))
	err := bob.Transfer(ctx, "GLD", aliceKey.Principal(), bobKey.Principal(), 5)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}

	var ledgerErr *LedgerError
	if !errors.As(err, &ledgerErr) {
		t.Fatalf("expected LedgerError, got %T", err)
	}
	if ledgerErr.Method != rpc.MethodTransfer || ledgerErr.Reason == "" {
		t.Errorf("unexpected ledger error: %+v", ledgerErr)
	}
}

func TestHTTPClient_UnsignedRejected(t *testing.T) {
	_, server := newLedgerServer(t, true)
	kp := mustKeypair(t)

	c := NewHTTPClient(server.URL)
	err := c.CreateToken(context.Background(), kp.Principal(), "Gold", "GLD", "img", 10)

	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpc.Error, got %v", err)
	}
	if rpcErr.Code != rpc.CodeUnauthorized {
		t.Errorf("expected code %d, got %d", rpc.CodeUnauthorized, rpcErr.Code)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpc.Request
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  uint64(999),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	supply, err := c.TotalSupply(context.Background(), "GLD")
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if supply != 999 {
		t.Errorf("expected supply 999, got %d", supply)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL,
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond),
	)

	if _, err := c.TotalSupply(context.Background(), "GLD"); err == nil {
		t.Fatal("expected error after retries")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	if _, err := c.TotalSupply(ctx, "GLD"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestHTTPClient_TransferNotResentAfterCommit(t *testing.T) {
	l := ledger.New()
	srv := rpc.NewServer(l, rpc.Config{},
		rpc.WithMetrics(observability.NewMetrics("test", prometheus.NewRegistry())))

	var attempts atomic.Int32
	// Commits the call, then loses the response behind a bad gateway.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		srv.ServeHTTP(httptest.NewRecorder(), r)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	aliceKey, bobKey := mustKeypair(t), mustKeypair(t)
	alice, bob := aliceKey.Principal(), bobKey.Principal()
	if err := l.CreateToken(alice, "Gold", "GLD", "img", 1000); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	c := NewHTTPClient(server.URL, WithKeypair(aliceKey), WithRetryDelay(time.Millisecond))
	err := c.Transfer(context.Background(), "GLD", alice, bob, 300)
	if !errors.Is(err, ErrOutcomeUnknown) {
		t.Fatalf("expected ErrOutcomeUnknown, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
	if got := l.BalanceOf("GLD", alice); got != 700 {
		t.Errorf("expected alice balance 700, got %d", got)
	}
	if got := l.BalanceOf("GLD", bob); got != 300 {
		t.Errorf("expected bob balance 300, got %d", got)
	}
}

func TestHTTPClient_TransferRetriedWhenRateLimited(t *testing.T) {
	l, ledgerServer := newLedgerServer(t, true)

	var attempts atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		ledgerServer.Config.Handler.ServeHTTP(w, r)
	}))
	defer proxy.Close()

	aliceKey, bobKey := mustKeypair(t), mustKeypair(t)
	alice, bob := aliceKey.Principal(), bobKey.Principal()
	if err := l.CreateToken(alice, "Gold", "GLD", "img", 1000); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	c := NewHTTPClient(proxy.URL, WithKeypair(aliceKey), WithRetryDelay(time.Millisecond))
	if err := c.Transfer(context.Background(), "GLD", alice, bob, 300); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
	if got := l.BalanceOf("GLD", bob); got != 300 {
		t.Errorf("expected bob balance 300, got %d", got)
	}
}

func TestHTTPClient_TransferRetriedWhenDialFails(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	kp := mustKeypair(t)
	c := NewHTTPClient(endpoint, WithKeypair(kp), WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	err := c.Transfer(context.Background(), "GLD", kp.Principal(), mustKeypair(t).Principal(), 1)
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if errors.Is(err, ErrOutcomeUnknown) {
		t.Errorf("dial failure never reached the server, got %v", err)
	}
}
