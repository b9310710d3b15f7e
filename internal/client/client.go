// Package client is a JSON-RPC client for the ledger server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"token-ledger/internal/principal"
	"token-ledger/internal/rpc"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient calls the ledger over HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	keypair     *principal.Keypair
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	now         func() time.Time
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithKeypair signs every request with kp.
func WithKeypair(kp *principal.Keypair) ClientOption {
	return func(c *HTTPClient) {
		c.keypair = kp
	}
}

// NewHTTPClient creates a new ledger RPC client. endpoint is the full /rpc URL.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LedgerError is returned when the ledger refused a mutation.
// Reason is the server-reported cause.
type LedgerError struct {
	Method string
	Reason string
}

func (e *LedgerError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s rejected", e.Method)
	}
	return fmt.Sprintf("%s rejected: %s", e.Method, e.Reason)
}

// ErrRejected matches any LedgerError with errors.Is.
var ErrRejected = errors.New("ledger rejected the operation")

// Is reports whether target is ErrRejected.
func (e *LedgerError) Is(target error) bool {
	return target == ErrRejected
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpc.Error      `json:"error,omitempty"`
}

// ErrOutcomeUnknown is returned when a mutation may have been applied but
// no usable response arrived. Such calls are not retried.
var ErrOutcomeUnknown = errors.New("outcome unknown")

// call performs a JSON-RPC call with retries and exponential backoff.
// It returns the X-Ledger-Reason header of the final response.
//
// Queries are retried on any transport or status failure. Mutations are
// retried only when the server cannot have dispatched them: a failed dial
// or a 429 from the rate limiter.
func (c *HTTPClient) call(ctx context.Context, method string, params any, result any) (string, error) {
	return c.do(ctx, method, params, result, true)
}

func (c *HTTPClient) do(ctx context.Context, method string, params any, result any, idempotent bool) (string, error) {
	reqID := c.requestID.Add(1)
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.keypair != nil {
			// Re-signed per attempt so retries stay inside the skew window.
			rpc.Sign(req, c.keypair, body, c.now())
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			if idempotent || isDialError(err) {
				continue
			}
			return "", fmt.Errorf("%s: %w: %w", method, ErrOutcomeUnknown, lastErr)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			if idempotent {
				continue
			}
			return "", fmt.Errorf("%s: %w: %w", method, ErrOutcomeUnknown, lastErr)
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			if idempotent {
				continue
			}
			return "", fmt.Errorf("%s: %w: %w", method, ErrOutcomeUnknown, lastErr)
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			if idempotent {
				continue
			}
			return "", fmt.Errorf("%s: %w: %w", method, ErrOutcomeUnknown, lastErr)
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return "", rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return "", fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return resp.Header.Get(rpc.HeaderReason), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// mutate runs a boolean-result method and turns false into a LedgerError.
func (c *HTTPClient) mutate(ctx context.Context, method string, params any) error {
	var ok bool
	reason, err := c.do(ctx, method, params, &ok, false)
	if err != nil {
		return err
	}
	if !ok {
		return &LedgerError{Method: method, Reason: reason}
	}
	return nil
}

// isDialError reports whether err happened before a connection existed,
// so the request was never sent.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
