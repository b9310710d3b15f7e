package domain

// TokenInfo is the immutable metadata of a token.
// Corresponds to tokens table in PostgreSQL.
type TokenInfo struct {
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"` // unique, case-sensitive
	ImageURL    string    `json:"image_url"`
	Owner       Principal `json:"owner"`
	TotalSupply uint64    `json:"total_supply"`
	CreatedAt   uint64    `json:"created_at"` // nanoseconds since Unix epoch
}
