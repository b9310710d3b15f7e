// Package rpc exposes the ledger over JSON-RPC 2.0.
//
// Ledger failures are reported as results (false, 0, []) with the reason
// in the X-Ledger-Reason response header. RPC errors are reserved for
// protocol faults such as malformed requests, bad params or failed
// authentication.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Method names
const (
	MethodCreateToken     = "create_token"
	MethodTransfer        = "transfer"
	MethodBalanceOf       = "balance_of"
	MethodTotalSupply     = "total_supply"
	MethodGetTokenList    = "get_token_list"
	MethodGetTransactions = "get_transactions"
	MethodGetToken        = "get_token"
)

// HTTP headers
const (
	HeaderPrincipal = "X-Ledger-Principal"
	HeaderTimestamp = "X-Ledger-Timestamp"
	HeaderSignature = "X-Ledger-Signature"
	HeaderReason    = "X-Ledger-Reason"
	HeaderRequestID = "X-Request-ID"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32001
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
