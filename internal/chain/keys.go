package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// SigningKey holds the certification account's ed25519 key material. It is
// immutable after construction; signing derives no additional state.
type SigningKey struct {
	priv    ed25519.PrivateKey
	address string
}

// ParseSigningKey builds a SigningKey from a hex-encoded 32-byte ed25519 seed.
// The account address is derived from the public key with the given bech32
// human-readable prefix.
func ParseSigningKey(hexSeed, hrp string) (*SigningKey, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("signing key is not valid hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	address, err := EncodeAddress(priv.Public().(ed25519.PublicKey), hrp)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}

	return &SigningKey{priv: priv, address: address}, nil
}

// Sign returns the ed25519 signature over msg.
func (k *SigningKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Address returns the bech32 account address derived from the public key.
func (k *SigningKey) Address() string {
	return k.address
}

// PublicKey returns the raw 32-byte public key.
func (k *SigningKey) PublicKey() []byte {
	return []byte(k.priv.Public().(ed25519.PublicKey))
}

// EncodeAddress converts a 32-byte public key into a bech32 address with the
// given prefix.
func EncodeAddress(pub []byte, hrp string) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	converted, err := bech32.ConvertBits(pub, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, converted)
}

// ValidateAddress checks that addr is a well-formed bech32 address carrying a
// 32-byte payload under the expected prefix.
func ValidateAddress(addr, hrp string) error {
	decodedHRP, data, err := bech32.Decode(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if decodedHRP != hrp {
		return fmt.Errorf("address %q has prefix %q, expected %q", addr, decodedHRP, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("address %q encodes %d bytes, expected %d", addr, len(raw), ed25519.PublicKeySize)
	}
	return nil
}
