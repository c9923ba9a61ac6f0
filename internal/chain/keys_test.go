package chain

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSeed = "0101010101010101010101010101010101010101010101010101010101010101"

func TestParseSigningKey(t *testing.T) {
	key, err := ParseSigningKey(testSeed, "cert")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(key.Address(), "cert1"))
	require.NoError(t, ValidateAddress(key.Address(), "cert"))
	require.Len(t, key.PublicKey(), ed25519.PublicKeySize)
}

func TestSignVerifies(t *testing.T) {
	key, err := ParseSigningKey(testSeed, "cert")
	require.NoError(t, err)

	msg := []byte("transaction bytes")
	sig := key.Sign(msg)
	require.True(t, ed25519.Verify(key.PublicKey(), msg, sig))
	require.False(t, ed25519.Verify(key.PublicKey(), []byte("tampered"), sig))
}

func TestParseSigningKeyRejectsBadInput(t *testing.T) {
	_, err := ParseSigningKey("not-hex", "cert")
	require.Error(t, err)

	_, err = ParseSigningKey("abcd", "cert")
	require.Error(t, err)
}

func TestValidateAddressRejectsWrongPrefix(t *testing.T) {
	key, err := ParseSigningKey(testSeed, "cert")
	require.NoError(t, err)

	require.Error(t, ValidateAddress(key.Address(), "other"))
	require.Error(t, ValidateAddress("cert1notbech32", "cert"))
	require.Error(t, ValidateAddress("", "cert"))
}
