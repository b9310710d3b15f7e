package rpc

import (
	"encoding/json"
	"errors"

	"token-ledger/internal/domain"
	"token-ledger/internal/ledger"
)

type method struct {
	mutating bool
	fn       func(s *Server, params json.RawMessage, c *call) (any, *Error)
}

var methods map[string]method

func init() {
	methods = map[string]method{
		MethodCreateToken:     {mutating: true, fn: (*Server).createToken},
		MethodTransfer:        {mutating: true, fn: (*Server).transfer},
		MethodBalanceOf:       {fn: (*Server).balanceOf},
		MethodTotalSupply:     {fn: (*Server).totalSupply},
		MethodGetTokenList:    {fn: (*Server).getTokenList},
		MethodGetTransactions: {fn: (*Server).getTransactions},
		MethodGetToken:        {fn: (*Server).getToken},
	}
}

// reasonLabel maps ledger errors to metric labels.
func reasonLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ledger.ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ledger.ErrDuplicateSymbol):
		return "duplicate_symbol"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "error"
	}
}

// mutationResult turns a ledger error into the boolean result.
func (s *Server) mutationResult(name string, err error, c *call) bool {
	s.metrics.RecordOperation(name, reasonLabel(err))
	if err != nil {
		c.reason = err.Error()
		return false
	}
	return true
}

func (s *Server) createToken(raw json.RawMessage, c *call) (any, *Error) {
	var p CreateTokenParams
	if err := decodeParams(MethodCreateToken, raw, &p); err != nil {
		return nil, err
	}
	owner, rpcErr := parsePrincipal("owner", p.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}

	err := s.ledger.CreateToken(owner, p.Name, p.Symbol, p.ImageURL, p.TotalSupply)
	return s.mutationResult(MethodCreateToken, err, c), nil
}

func (s *Server) transfer(raw json.RawMessage, c *call) (any, *Error) {
	var p TransferParams
	if err := decodeParams(MethodTransfer, raw, &p); err != nil {
		return nil, err
	}
	from, rpcErr := parsePrincipal("from", p.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parsePrincipal("to", p.To)
	if rpcErr != nil {
		return nil, rpcErr
	}

	caller := c.caller
	if caller == "" {
		// Unsigned calls are only dispatched when signatures are optional.
		caller = from
	}

	err := s.ledger.Transfer(caller, p.Symbol, from, to, p.Amount)
	return s.mutationResult(MethodTransfer, err, c), nil
}

func (s *Server) balanceOf(raw json.RawMessage, _ *call) (any, *Error) {
	var p HolderParams
	if err := decodeParams(MethodBalanceOf, raw, &p); err != nil {
		return nil, err
	}
	user, rpcErr := parsePrincipal("user", p.User)
	if rpcErr != nil {
		return nil, rpcErr
	}
	s.metrics.RecordOperation(MethodBalanceOf, "ok")
	return s.ledger.BalanceOf(p.Symbol, user), nil
}

func (s *Server) totalSupply(raw json.RawMessage, _ *call) (any, *Error) {
	var p SymbolParams
	if err := decodeParams(MethodTotalSupply, raw, &p); err != nil {
		return nil, err
	}
	s.metrics.RecordOperation(MethodTotalSupply, "ok")
	return s.ledger.TotalSupply(p.Symbol), nil
}

// getTokenList renders tokens as [name, symbol, image_url] tuples.
func (s *Server) getTokenList(_ json.RawMessage, _ *call) (any, *Error) {
	list := s.ledger.TokenList()
	out := make([][3]string, 0, len(list))
	for _, t := range list {
		out = append(out, [3]string{t.Name, t.Symbol, t.ImageURL})
	}
	s.metrics.RecordOperation(MethodGetTokenList, "ok")
	return out, nil
}

func (s *Server) getTransactions(raw json.RawMessage, _ *call) (any, *Error) {
	var p HolderParams
	if err := decodeParams(MethodGetTransactions, raw, &p); err != nil {
		return nil, err
	}
	user, rpcErr := parsePrincipal("user", p.User)
	if rpcErr != nil {
		return nil, rpcErr
	}
	s.metrics.RecordOperation(MethodGetTransactions, "ok")
	return s.ledger.Transactions(p.Symbol, user), nil
}

func (s *Server) getToken(raw json.RawMessage, _ *call) (any, *Error) {
	var p SymbolParams
	if err := decodeParams(MethodGetToken, raw, &p); err != nil {
		return nil, err
	}
	info, ok := s.ledger.Token(p.Symbol)
	s.metrics.RecordOperation(MethodGetToken, "ok")
	if !ok {
		return (*domain.TokenInfo)(nil), nil
	}
	return &info, nil
}
