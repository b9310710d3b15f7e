package principal

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_GeneratedKey(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	p, err := Parse(string(kp.Principal()))
	require.NoError(t, err)
	assert.Equal(t, kp.Principal(), p)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base58", "0OIl"},
		{"too short", base58.Encode([]byte{1, 2, 3})},
		{"too long", base58.Encode(make([]byte, 33))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.ErrorIs(t, err, ErrInvalidPrincipal)
		})
	}
}

func TestParse_RejectsOffCurve(t *testing.T) {
	// Hash counters until one lands off the curve, as program derived addresses do.
	var offCurve []byte
	for i := uint64(0); i < 256; i++ {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], i)
		h := sha256.Sum256(buf[:])
		if !isOnCurve(h[:]) {
			offCurve = h[:]
			break
		}
	}
	require.NotNil(t, offCurve, "no off-curve candidate found")

	_, err := Parse(base58.Encode(offCurve))
	assert.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestKeypair_SignVerify(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	msg := SigningMessage(1700000000000, []byte(`{"jsonrpc":"2.0"}`))
	sig := kp.Sign(msg)

	require.NoError(t, Verify(kp.Principal(), msg, sig))

	tampered := SigningMessage(1700000000001, []byte(`{"jsonrpc":"2.0"}`))
	assert.True(t, errors.Is(Verify(kp.Principal(), tampered, sig), ErrInvalidSignature))

	other, err := GenerateKeypair()
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(other.Principal(), msg, sig), ErrInvalidSignature)

	assert.ErrorIs(t, Verify(kp.Principal(), msg, "not-a-signature"), ErrInvalidSignature)
}

func TestKeypair_SecretRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	restored, err := ParseSecret(kp.Secret())
	require.NoError(t, err)
	assert.Equal(t, kp.Principal(), restored.Principal())

	_, err = KeypairFromSeed([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSigningMessage(t *testing.T) {
	assert.Equal(t, "42.body", string(SigningMessage(42, []byte("body"))))
}
