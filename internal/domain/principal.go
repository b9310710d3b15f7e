package domain

// Principal identifies an account holder.
// The ledger treats it as an opaque key; the RPC layer only admits base58
// encoded ed25519 public keys.
type Principal string

// String returns the principal text.
func (p Principal) String() string {
	return string(p)
}

// IsZero reports whether p is empty.
func (p Principal) IsZero() bool {
	return p == ""
}
