package services

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"sponsor-backend/internal/clients"
	"sponsor-backend/internal/keyless"
	"sponsor-backend/internal/types"
	"sponsor-backend/internal/utils"
)

type proverStub struct {
	GenerateCalled func(req *clients.ProverRequest) (json.RawMessage, error)
}

func (p *proverStub) GenerateProof(req *clients.ProverRequest) (json.RawMessage, error) {
	if p.GenerateCalled != nil {
		return p.GenerateCalled(req)
	}
	return json.RawMessage(`{"proof":"ok"}`), nil
}

// proofFixture all the mutually consistent inputs one login produces
type proofFixture struct {
	seed       []byte
	randomness []byte
	salt       []byte
	maxEpoch   uint64
	epk        []byte
	nonce      string
	address    string
}

func newProofFixture(t *testing.T) *proofFixture {
	t.Helper()

	seed := make([]byte, 32)
	randomness := make([]byte, 32)
	salt := make([]byte, 32)
	for i := 0; i < 32; i++ {
		seed[i] = byte(i + 1)
		randomness[i] = byte(0xA0 + i)
		salt[i] = byte(0x50 + i)
	}

	account, err := keyless.DeriveEphemeral(seed)
	require.Nil(t, err)
	blinder, err := keyless.BlinderFromRandomness(randomness)
	require.Nil(t, err)
	nonce, err := keyless.NonceCommitment(account.ExtendedPublicKey(), 100, blinder)
	require.Nil(t, err)

	return &proofFixture{
		seed:       seed,
		randomness: randomness,
		salt:       salt,
		maxEpoch:   100,
		epk:        account.ExtendedPublicKey(),
		nonce:      nonce,
		address:    account.Address.String(),
	}
}

func (f *proofFixture) request(t *testing.T, tokenNonce string) *types.GenerateProofRequest {
	t.Helper()

	token := mintProofToken(t, map[string]interface{}{
		"iss":   "https://accounts.example.com",
		"sub":   "user-42",
		"aud":   "client-id",
		"nonce": tokenNonce,
	})

	return &types.GenerateProofRequest{
		LoginToken:                 token,
		ExtendedEphemeralPublicKey: utils.EncodeHexBytes(f.epk),
		MaxEpoch:                   f.maxEpoch,
		RandomnessHex:              utils.EncodeHexBytes(f.randomness),
		SaltHex:                    utils.EncodeHexBytes(f.salt),
	}
}

func mintProofToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	require.Nil(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".dGVzdHNpZ25hdHVyZQ"
}

func TestGenerateProofRawNonceProvider(t *testing.T) {
	t.Parallel()

	fixture := newProofFixture(t)

	var upstream *clients.ProverRequest
	prover := &proverStub{
		GenerateCalled: func(req *clients.ProverRequest) (json.RawMessage, error) {
			upstream = req
			return json.RawMessage(`{"proof":"zk"}`), nil
		},
	}

	service := NewProofService(prover, 0)
	resp, err := service.GenerateProof(fixture.request(t, fixture.nonce))
	require.Nil(t, err)

	require.Equal(t, types.ProviderRawNonce, resp.Provider)
	require.Equal(t, types.ProofModeStandard, resp.Mode)
	require.False(t, resp.RequiresSpecialHandling)
	require.Equal(t, fixture.address, resp.DerivedAddress)
	require.Equal(t, json.RawMessage(`{"proof":"zk"}`), resp.Proof)

	// The token goes upstream untouched and the claim name defaults to sub
	tokenNonce, err := keyless.NonceClaim(upstream.JWT)
	require.Nil(t, err)
	require.Equal(t, fixture.nonce, tokenNonce)
	require.Equal(t, "sub", upstream.KeyClaimName)
}

func TestGenerateProofHashedNonceProvider(t *testing.T) {
	t.Parallel()

	fixture := newProofFixture(t)
	digest := sha256.Sum256([]byte(fixture.nonce))
	hashedNonce := base64.RawURLEncoding.EncodeToString(digest[:])

	var upstream *clients.ProverRequest
	prover := &proverStub{
		GenerateCalled: func(req *clients.ProverRequest) (json.RawMessage, error) {
			upstream = req
			return json.RawMessage(`{"proof":"zk"}`), nil
		},
	}

	service := NewProofService(prover, 0)
	resp, err := service.GenerateProof(fixture.request(t, hashedNonce))
	require.Nil(t, err)

	require.Equal(t, types.ProviderHashedNonce, resp.Provider)
	require.Equal(t, types.ProofModeNonceSubstituted, resp.Mode)

	// The upstream token carries the raw nonce after substitution
	tokenNonce, err := keyless.NonceClaim(upstream.JWT)
	require.Nil(t, err)
	require.Equal(t, fixture.nonce, tokenNonce)
}

func TestGenerateProofHexHashedNonceProvider(t *testing.T) {
	t.Parallel()

	fixture := newProofFixture(t)
	digest := sha256.Sum256([]byte(fixture.nonce))
	hashedNonce := fmt.Sprintf("%x", digest[:])

	service := NewProofService(&proverStub{}, 0)
	resp, err := service.GenerateProof(fixture.request(t, hashedNonce))
	require.Nil(t, err)
	require.Equal(t, types.ProviderHashedNonce, resp.Provider)
}

func TestGenerateProofNonceMismatch(t *testing.T) {
	t.Parallel()

	fixture := newProofFixture(t)

	service := NewProofService(&proverStub{
		GenerateCalled: func(req *clients.ProverRequest) (json.RawMessage, error) {
			t.Fatal("prover must not be called on a nonce mismatch")
			return nil, nil
		},
	}, 0)

	_, err := service.GenerateProof(fixture.request(t, "dW5yZWxhdGVkLW5vbmNl"))
	require.True(t, errors.Is(err, types.ErrNonceMismatch))
}

func TestGenerateProofCompatibilityFallback(t *testing.T) {
	t.Parallel()

	fixture := newProofFixture(t)
	digest := sha256.Sum256([]byte(fixture.nonce))
	hashedNonce := base64.RawURLEncoding.EncodeToString(digest[:])

	prover := &proverStub{
		GenerateCalled: func(req *clients.ProverRequest) (json.RawMessage, error) {
			return nil, fmt.Errorf("%w: signature verification failed", types.ErrUpstreamProof)
		},
	}

	service := NewProofService(prover, 0)
	resp, err := service.GenerateProof(fixture.request(t, hashedNonce))
	require.Nil(t, err)

	require.Equal(t, types.ProofModeCompatibility, resp.Mode)
	require.Equal(t, types.ProviderHashedNonce, resp.Provider)
	require.True(t, resp.RequiresSpecialHandling)
	require.Nil(t, resp.Proof)
	require.Equal(t, fixture.address, resp.DerivedAddress)
}

func TestGenerateProofRawNonceUpstreamFailureIsFatal(t *testing.T) {
	t.Parallel()

	fixture := newProofFixture(t)

	prover := &proverStub{
		GenerateCalled: func(req *clients.ProverRequest) (json.RawMessage, error) {
			return nil, fmt.Errorf("%w: internal error", types.ErrUpstreamProof)
		},
	}

	// The compatibility fallback applies only to hashed-nonce providers
	service := NewProofService(prover, 0)
	_, err := service.GenerateProof(fixture.request(t, fixture.nonce))
	require.True(t, errors.Is(err, types.ErrUpstreamProof))
}

func TestGenerateProofParameterWidthAdaptation(t *testing.T) {
	t.Parallel()

	fixture := newProofFixture(t)

	var upstream *clients.ProverRequest
	prover := &proverStub{
		GenerateCalled: func(req *clients.ProverRequest) (json.RawMessage, error) {
			upstream = req
			return json.RawMessage(`{}`), nil
		},
	}

	service := NewProofService(prover, 0)
	_, err := service.GenerateProof(fixture.request(t, fixture.nonce))
	require.Nil(t, err)

	// 32-byte values are hashed and truncated to 16 bytes, then rendered as
	// decimal big-endian integers
	saltDigest := sha256.Sum256(fixture.salt)
	wantSalt := new(big.Int).SetBytes(saltDigest[:16]).String()
	require.Equal(t, wantSalt, upstream.Salt)

	randomnessDigest := sha256.Sum256(fixture.randomness)
	wantRandomness := new(big.Int).SetBytes(randomnessDigest[:16]).String()
	require.Equal(t, wantRandomness, upstream.Randomness)
}

func TestGenerateProofNarrowParametersPassThrough(t *testing.T) {
	t.Parallel()

	// 16-byte values already fit and go out as their own decimal rendering
	require.Equal(t, new(big.Int).SetBytes([]byte{0x01, 0x02}).String(), adaptParameterWidth([]byte{0x01, 0x02}, 16))

	sixteen := make([]byte, 16)
	sixteen[0] = 0xFF
	require.Equal(t, new(big.Int).SetBytes(sixteen).String(), adaptParameterWidth(sixteen, 16))
}

func TestGenerateProofValidation(t *testing.T) {
	t.Parallel()

	fixture := newProofFixture(t)
	service := NewProofService(&proverStub{}, 0)

	req := fixture.request(t, fixture.nonce)
	req.ExtendedEphemeralPublicKey = "zz-not-decodable"
	_, err := service.GenerateProof(req)
	require.True(t, errors.Is(err, types.ErrValidation))

	req = fixture.request(t, fixture.nonce)
	req.RandomnessHex = "0x01"
	_, err = service.GenerateProof(req)
	require.True(t, errors.Is(err, types.ErrValidation))
}
