package rpc

import (
	"bytes"
	"encoding/json"

	"token-ledger/internal/domain"
	"token-ledger/internal/principal"
)

// Positional parameter order of each method.
var positional = map[string][]string{
	MethodCreateToken:     {"owner", "name", "symbol", "image_url", "total_supply"},
	MethodTransfer:        {"symbol", "to", "from", "amount"},
	MethodBalanceOf:       {"symbol", "user"},
	MethodTotalSupply:     {"symbol"},
	MethodGetTransactions: {"symbol", "user"},
	MethodGetToken:        {"symbol"},
}

// CreateTokenParams are the params of create_token.
type CreateTokenParams struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	ImageURL    string `json:"image_url"`
	TotalSupply uint64 `json:"total_supply"`
}

// TransferParams are the params of transfer.
type TransferParams struct {
	Symbol string `json:"symbol"`
	To     string `json:"to"`
	From   string `json:"from"`
	Amount uint64 `json:"amount"`
}

// HolderParams are the params of balance_of and get_transactions.
type HolderParams struct {
	Symbol string `json:"symbol"`
	User   string `json:"user"`
}

// SymbolParams are the params of total_supply and get_token.
type SymbolParams struct {
	Symbol string `json:"symbol"`
}

// decodeParams accepts params as a named object or a positional array.
func decodeParams(method string, raw json.RawMessage, dst any) *Error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errorf(CodeInvalidParams, "missing params")
	}

	if raw[0] == '[' {
		var values []json.RawMessage
		if err := json.Unmarshal(raw, &values); err != nil {
			return errorf(CodeInvalidParams, "invalid params: %v", err)
		}
		names := positional[method]
		if len(values) != len(names) {
			return errorf(CodeInvalidParams, "%s expects %d params, got %d", method, len(names), len(values))
		}
		named := make(map[string]json.RawMessage, len(names))
		for i, name := range names {
			named[name] = values[i]
		}
		var err error
		if raw, err = json.Marshal(named); err != nil {
			return errorf(CodeInvalidParams, "invalid params: %v", err)
		}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return errorf(CodeInvalidParams, "invalid params: %v", err)
	}
	return nil
}

// parsePrincipal validates a principal param.
func parsePrincipal(field, s string) (domain.Principal, *Error) {
	p, err := principal.Parse(s)
	if err != nil {
		return "", errorf(CodeInvalidParams, "%s: %v", field, err)
	}
	return p, nil
}
