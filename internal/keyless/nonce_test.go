package keyless

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sponsor-backend/internal/types"
)

// mintToken builds an unsigned login token with the given claims, the shape
// identity providers emit (unpadded base64url segments)
func mintToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	require.Nil(t, err)

	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".dGVzdHNpZ25hdHVyZQ"
}

func testSeed() []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

func testRandomness() []byte {
	randomness := make([]byte, 32)
	for i := range randomness {
		randomness[i] = byte(0xA0 + i)
	}
	return randomness
}

// goldenNonce the commitment for (testSeed, testRandomness, maxEpoch=100),
// pinned so a derivation change cannot slip through unnoticed
const goldenNonce = "ANN70kkZNqMQ9tQD_HcWojViVZw"

func TestNonceCommitmentDeterministic(t *testing.T) {
	t.Parallel()

	account, err := DeriveEphemeral(testSeed())
	require.Nil(t, err)

	blinder, err := BlinderFromRandomness(testRandomness())
	require.Nil(t, err)

	first, err := NonceCommitment(account.ExtendedPublicKey(), 42, blinder)
	require.Nil(t, err)
	second, err := NonceCommitment(account.ExtendedPublicKey(), 42, blinder)
	require.Nil(t, err)
	require.Equal(t, first, second)

	// The nonce is an unpadded base64url string over 20 bytes
	decoded, err := base64.RawURLEncoding.DecodeString(first)
	require.Nil(t, err)
	require.Len(t, decoded, 20)

	// Any input change moves the commitment
	otherEpoch, err := NonceCommitment(account.ExtendedPublicKey(), 43, blinder)
	require.Nil(t, err)
	require.NotEqual(t, first, otherEpoch)

	golden, err := NonceCommitment(account.ExtendedPublicKey(), 100, blinder)
	require.Nil(t, err)
	require.Equal(t, goldenNonce, golden)
}

func TestNonceCommitmentRejectsBadInputs(t *testing.T) {
	t.Parallel()

	blinder, err := BlinderFromRandomness(testRandomness())
	require.Nil(t, err)

	_, err = NonceCommitment(make([]byte, 32), 1, blinder)
	require.NotNil(t, err)

	account, err := DeriveEphemeral(testSeed())
	require.Nil(t, err)
	_, err = NonceCommitment(account.ExtendedPublicKey(), 1, nil)
	require.NotNil(t, err)
}

func TestBlinderFromRandomness(t *testing.T) {
	t.Parallel()

	randomness := testRandomness()
	blinder, err := BlinderFromRandomness(randomness)
	require.Nil(t, err)

	// Only the first 16 bytes feed the blinder
	tail := append([]byte{}, randomness...)
	tail[31] ^= 0xFF
	same, err := BlinderFromRandomness(tail)
	require.Nil(t, err)
	require.Equal(t, blinder, same)

	head := append([]byte{}, randomness...)
	head[0] ^= 0xFF
	different, err := BlinderFromRandomness(head)
	require.Nil(t, err)
	require.NotEqual(t, blinder, different)

	_, err = BlinderFromRandomness(make([]byte, 8))
	require.NotNil(t, err)
}

func TestDeriveEphemeralDeterministic(t *testing.T) {
	t.Parallel()

	first, err := DeriveEphemeral(testSeed())
	require.Nil(t, err)
	second, err := DeriveEphemeral(testSeed())
	require.Nil(t, err)

	require.True(t, bytes.Equal(first.PublicKey, second.PublicKey))
	require.Equal(t, first.Address, second.Address)

	// Bytes beyond the first 32 are ignored
	padded, err := DeriveEphemeral(append(testSeed(), 0xFF, 0xFF))
	require.Nil(t, err)
	require.Equal(t, first.Address, padded.Address)

	_, err = DeriveEphemeral(make([]byte, 16))
	require.True(t, errors.Is(err, types.ErrValidation))
}

func TestAddressFromExtendedPublicKey(t *testing.T) {
	t.Parallel()

	account, err := DeriveEphemeral(testSeed())
	require.Nil(t, err)

	address, err := AddressFromExtendedPublicKey(account.ExtendedPublicKey())
	require.Nil(t, err)
	require.Equal(t, account.Address, address)

	_, err = AddressFromExtendedPublicKey(make([]byte, 32))
	require.True(t, errors.Is(err, types.ErrValidation))
}

func TestReconstructRoundTrip(t *testing.T) {
	t.Parallel()

	seed := testSeed()
	randomness := testRandomness()
	maxEpoch := uint64(100)

	account, err := DeriveEphemeral(seed)
	require.Nil(t, err)
	blinder, err := BlinderFromRandomness(randomness)
	require.Nil(t, err)
	nonce, err := NonceCommitment(account.ExtendedPublicKey(), maxEpoch, blinder)
	require.Nil(t, err)

	token := mintToken(t, map[string]interface{}{
		"iss":   "https://accounts.example.com",
		"sub":   "1234567890",
		"nonce": nonce,
	})

	identity, err := Reconstruct(seed, randomness, maxEpoch, token)
	require.Nil(t, err)
	require.Equal(t, goldenNonce, identity.Nonce)
	require.Equal(t, account.Address, identity.Account.Address)
}

func TestReconstructNonceMismatch(t *testing.T) {
	t.Parallel()

	token := mintToken(t, map[string]interface{}{
		"iss":   "https://accounts.example.com",
		"nonce": "bm90LXRoZS1yaWdodC1ub25jZQ",
	})

	_, err := Reconstruct(testSeed(), testRandomness(), 100, token)
	require.True(t, errors.Is(err, types.ErrNonceMismatch))
}

func TestReconstructWrongEpochFails(t *testing.T) {
	t.Parallel()

	seed := testSeed()
	randomness := testRandomness()

	account, err := DeriveEphemeral(seed)
	require.Nil(t, err)
	blinder, err := BlinderFromRandomness(randomness)
	require.Nil(t, err)
	nonce, err := NonceCommitment(account.ExtendedPublicKey(), 100, blinder)
	require.Nil(t, err)

	token := mintToken(t, map[string]interface{}{"nonce": nonce})

	// Same key material but a different epoch commits to a different nonce
	_, err = Reconstruct(seed, randomness, 101, token)
	require.True(t, errors.Is(err, types.ErrNonceMismatch))
}

func TestNonceClaim(t *testing.T) {
	t.Parallel()

	token := mintToken(t, map[string]interface{}{"nonce": "abc123", "iss": "https://id.example.com"})

	nonce, err := NonceClaim(token)
	require.Nil(t, err)
	require.Equal(t, "abc123", nonce)
	require.Equal(t, "https://id.example.com", IssuerClaim(token))

	_, err = NonceClaim(mintToken(t, map[string]interface{}{"sub": "no-nonce-here"}))
	require.NotNil(t, err)
}

func TestSubstituteNonce(t *testing.T) {
	t.Parallel()

	token := mintToken(t, map[string]interface{}{
		"iss":   "https://id.example.com",
		"sub":   "user-42",
		"aud":   "client-id",
		"nonce": "aGFzaGVkLW5vbmNlLXZhbHVl",
	})

	substituted, err := SubstituteNonce(token, "cmF3LW5vbmNlLXZhbHVl")
	require.Nil(t, err)

	// Header and signature segments survive untouched
	originalParts := strings.Split(token, ".")
	newParts := strings.Split(substituted, ".")
	require.Len(t, newParts, 3)
	require.Equal(t, originalParts[0], newParts[0])
	require.Equal(t, originalParts[2], newParts[2])

	// Claims segment is unpadded base64url with only the nonce replaced
	require.False(t, strings.Contains(newParts[1], "="))
	payload, err := base64.RawURLEncoding.DecodeString(newParts[1])
	require.Nil(t, err)

	var claims map[string]interface{}
	require.Nil(t, json.Unmarshal(payload, &claims))
	require.Equal(t, "cmF3LW5vbmNlLXZhbHVl", claims["nonce"])
	require.Equal(t, "user-42", claims["sub"])
	require.Equal(t, "client-id", claims["aud"])
	require.Equal(t, "https://id.example.com", claims["iss"])
}

func TestSubstituteNonceRejectsMalformedTokens(t *testing.T) {
	t.Parallel()

	_, err := SubstituteNonce("only.two", "nonce")
	require.NotNil(t, err)

	_, err = SubstituteNonce(mintToken(t, map[string]interface{}{"sub": "no-nonce"}), "nonce")
	require.NotNil(t, err)
}
