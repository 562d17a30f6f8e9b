// Package keyless implements the client-compatible derivations for keyless
// (OAuth-bound) accounts: the ephemeral signing key, the nonce commitment that
// binds it into the login token, and the token transforms needed to feed a
// third-party prover. Everything here is a pure function of its inputs; no key
// material is ever persisted.
package keyless

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// nonceByteLength the commitment hash is truncated to 20 big-endian bytes
// before base64url encoding, matching the client-side derivation
const nonceByteLength = 20

// blinderByteLength only the first 16 bytes of the randomness value feed the
// commitment, interpreted as a big-endian unsigned integer
const blinderByteLength = 16

var limbShift = new(big.Int).Lsh(big.NewInt(1), 128)

// BlinderFromRandomness derives the commitment blinder from the raw randomness
// bytes the client generated at login
func BlinderFromRandomness(randomness []byte) (*big.Int, error) {
	if len(randomness) < blinderByteLength {
		return nil, fmt.Errorf("randomness too short: need at least %d bytes, got %d", blinderByteLength, len(randomness))
	}
	return new(big.Int).SetBytes(randomness[:blinderByteLength]), nil
}

// NonceCommitment computes the login nonce that binds the ephemeral public key,
// its expiry epoch and the blinder. The extended public key (scheme byte plus
// 32 key bytes) is split into two 128-bit limbs so each Poseidon input fits the
// scalar field.
func NonceCommitment(extendedPublicKey []byte, maxEpoch uint64, blinder *big.Int) (string, error) {
	if len(extendedPublicKey) != extendedPublicKeyLength {
		return "", fmt.Errorf("extended public key must be %d bytes, got %d", extendedPublicKeyLength, len(extendedPublicKey))
	}
	if blinder == nil || blinder.Sign() < 0 {
		return "", fmt.Errorf("blinder must be a non-negative integer")
	}

	pk := new(big.Int).SetBytes(extendedPublicKey)
	pkHigh := new(big.Int).Div(pk, limbShift)
	pkLow := new(big.Int).Mod(pk, limbShift)

	hash, err := poseidon.Hash([]*big.Int{
		pkHigh,
		pkLow,
		new(big.Int).SetUint64(maxEpoch),
		blinder,
	})
	if err != nil {
		return "", fmt.Errorf("poseidon hash failed: %w", err)
	}

	return encodeNonce(hash), nil
}

func encodeNonce(hash *big.Int) string {
	buf := make([]byte, nonceByteLength)
	// Keep the low 20 bytes of the field element
	truncated := new(big.Int).Mod(hash, new(big.Int).Lsh(big.NewInt(1), nonceByteLength*8))
	truncated.FillBytes(buf)
	return base64URLEncode(buf)
}
