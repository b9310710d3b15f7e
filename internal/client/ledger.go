package client

import (
	"context"

	"token-ledger/internal/domain"
	"token-ledger/internal/rpc"
)

// TokenSummary is an entry of the token list.
type TokenSummary struct {
	Name     string
	Symbol   string
	ImageURL string
}

// CreateToken registers a token owned by owner.
func (c *HTTPClient) CreateToken(ctx context.Context, owner domain.Principal, name, symbol, imageURL string, totalSupply uint64) error {
	return c.mutate(ctx, rpc.MethodCreateToken, rpc.CreateTokenParams{
		Owner:       owner.String(),
		Name:        name,
		Symbol:      symbol,
		ImageURL:    imageURL,
		TotalSupply: totalSupply,
	})
}

// Transfer moves amount of symbol from from to to.
func (c *HTTPClient) Transfer(ctx context.Context, symbol string, from, to domain.Principal, amount uint64) error {
	return c.mutate(ctx, rpc.MethodTransfer, rpc.TransferParams{
		Symbol: symbol,
		From:   from.String(),
		To:     to.String(),
		Amount: amount,
	})
}

// BalanceOf returns the balance of user.
func (c *HTTPClient) BalanceOf(ctx context.Context, symbol string, user domain.Principal) (uint64, error) {
	var balance uint64
	_, err := c.call(ctx, rpc.MethodBalanceOf, rpc.HolderParams{Symbol: symbol, User: user.String()}, &balance)
	return balance, err
}

// TotalSupply returns the supply of symbol.
func (c *HTTPClient) TotalSupply(ctx context.Context, symbol string) (uint64, error) {
	var supply uint64
	_, err := c.call(ctx, rpc.MethodTotalSupply, rpc.SymbolParams{Symbol: symbol}, &supply)
	return supply, err
}

// TokenList returns all tokens in creation order.
func (c *HTTPClient) TokenList(ctx context.Context) ([]TokenSummary, error) {
	var tuples [][3]string
	if _, err := c.call(ctx, rpc.MethodGetTokenList, nil, &tuples); err != nil {
		return nil, err
	}

	list := make([]TokenSummary, 0, len(tuples))
	for _, t := range tuples {
		list = append(list, TokenSummary{Name: t[0], Symbol: t[1], ImageURL: t[2]})
	}
	return list, nil
}

// Transactions returns the history of user.
func (c *HTTPClient) Transactions(ctx context.Context, symbol string, user domain.Principal) ([]domain.Transaction, error) {
	var history []domain.Transaction
	_, err := c.call(ctx, rpc.MethodGetTransactions, rpc.HolderParams{Symbol: symbol, User: user.String()}, &history)
	return history, err
}

// Token returns token metadata, or nil if symbol is unknown.
func (c *HTTPClient) Token(ctx context.Context, symbol string) (*domain.TokenInfo, error) {
	var info *domain.TokenInfo
	_, err := c.call(ctx, rpc.MethodGetToken, rpc.SymbolParams{Symbol: symbol}, &info)
	return info, err
}
