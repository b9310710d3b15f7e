// Package principal encodes account identities as base58 ed25519 public keys
// and signs and verifies ledger requests made on their behalf.
package principal

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"token-ledger/internal/domain"
)

// Errors returned by Parse and Verify.
var (
	// ErrInvalidPrincipal is returned when a principal is not a base58 encoded curve point.
	ErrInvalidPrincipal = errors.New("invalid principal")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Parse validates s as a base58 encoded 32-byte ed25519 public key.
func Parse(s string) (domain.Principal, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPrincipal)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: %d bytes, want %d", ErrInvalidPrincipal, len(raw), ed25519.PublicKeySize)
	}
	if !isOnCurve(raw) {
		return "", fmt.Errorf("%w: not an ed25519 point", ErrInvalidPrincipal)
	}
	return domain.Principal(s), nil
}

// FromPublicKey encodes an ed25519 public key as a principal.
func FromPublicKey(pub ed25519.PublicKey) domain.Principal {
	return domain.Principal(base58.Encode(pub))
}

func isOnCurve(point []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// Keypair is an ed25519 signing identity.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a random keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// ParseSecret decodes a base58 seed produced by (*Keypair).Secret.
func ParseSecret(s string) (*Keypair, error) {
	seed, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	return KeypairFromSeed(seed)
}

// Secret returns the base58 encoded seed.
func (k *Keypair) Secret() string {
	return base58.Encode(k.Private.Seed())
}

// Principal returns the identity of k.
func (k *Keypair) Principal() domain.Principal {
	return FromPublicKey(k.Public)
}

// Sign signs msg and returns the base58 encoded signature.
func (k *Keypair) Sign(msg []byte) string {
	return base58.Encode(ed25519.Sign(k.Private, msg))
}

// Verify checks a base58 signature of msg made by p.
func Verify(p domain.Principal, msg []byte, signature string) error {
	pub, err := base58.Decode(string(p))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: %q", ErrInvalidPrincipal, p)
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// SigningMessage builds the bytes covered by a request signature:
// the decimal unix-millisecond timestamp, a dot, and the raw request body.
func SigningMessage(timestampMs int64, body []byte) []byte {
	ts := strconv.FormatInt(timestampMs, 10)
	msg := make([]byte, 0, len(ts)+1+len(body))
	msg = append(msg, ts...)
	msg = append(msg, '.')
	msg = append(msg, body...)
	return msg
}
