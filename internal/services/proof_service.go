package services

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"

	"sponsor-backend/internal/clients"
	"sponsor-backend/internal/keyless"
	"sponsor-backend/internal/metrics"
	"sponsor-backend/internal/types"
	"sponsor-backend/internal/utils"
)

const defaultKeyClaimName = "sub"

// defaultParameterWidth the upstream proof service accepts salt and randomness
// values up to 16 bytes wide; this system's native values are 32 bytes
const defaultParameterWidth = 16

// Prover the upstream proof dependency, narrowed for testability
type Prover interface {
	GenerateProof(req *clients.ProverRequest) (json.RawMessage, error)
}

// ProofService reconciles the login token's nonce claim with the locally
// recomputed commitment, adapts parameter widths, and drives the upstream
// prover. Stateless: every call stands alone and nothing is persisted.
type ProofService struct {
	prover         Prover
	parameterWidth int
}

// NewProofService creates the proof service. maxInputWidth is the widest
// salt/randomness value (bytes) the upstream prover accepts; zero means the
// default of 16.
func NewProofService(prover Prover, maxInputWidth int) *ProofService {
	if maxInputWidth <= 0 {
		maxInputWidth = defaultParameterWidth
	}
	return &ProofService{prover: prover, parameterWidth: maxInputWidth}
}

// GenerateProof classifies the identity provider by its nonce handling and
// obtains a login proof:
//
//   - token nonce equals the recomputed commitment: raw-nonce provider, the
//     token goes upstream unchanged
//   - token nonce equals SHA-256 of the commitment: hashed-nonce provider, the
//     raw nonce is substituted into the claims segment first
//   - anything else is a hard nonce mismatch
//
// For hashed-nonce providers an upstream rejection of the substituted token is
// not fatal: the caller gets a proof-less compatibility result and decides how
// to proceed.
func (s *ProofService) GenerateProof(req *types.GenerateProofRequest) (*types.GenerateProofResponse, error) {
	extendedPublicKey, err := decodeExtendedPublicKey(req.ExtendedEphemeralPublicKey)
	if err != nil {
		return nil, err
	}
	randomness, err := utils.DecodeHexBytes(req.RandomnessHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid randomness: %v", types.ErrValidation, err)
	}
	salt, err := utils.DecodeHexBytes(req.SaltHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid salt: %v", types.ErrValidation, err)
	}

	blinder, err := keyless.BlinderFromRandomness(randomness)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	nonce, err := keyless.NonceCommitment(extendedPublicKey, req.MaxEpoch, blinder)
	if err != nil {
		return nil, err
	}
	tokenNonce, err := keyless.NonceClaim(req.LoginToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	provider, proverToken, err := s.reconcileNonce(req.LoginToken, tokenNonce, nonce)
	if err != nil {
		return nil, err
	}
	mode := types.ProofModeStandard
	if provider == types.ProviderHashedNonce {
		mode = types.ProofModeNonceSubstituted
	}

	address, err := keyless.AddressFromExtendedPublicKey(extendedPublicKey)
	if err != nil {
		return nil, err
	}

	keyClaimName := req.KeyClaimName
	if keyClaimName == "" {
		keyClaimName = defaultKeyClaimName
	}

	proof, err := s.prover.GenerateProof(&clients.ProverRequest{
		JWT:                        proverToken,
		ExtendedEphemeralPublicKey: base64.StdEncoding.EncodeToString(extendedPublicKey),
		MaxEpoch:                   req.MaxEpoch,
		Randomness:                 adaptParameterWidth(randomness, s.parameterWidth),
		Salt:                       adaptParameterWidth(salt, s.parameterWidth),
		KeyClaimName:               keyClaimName,
		Audience:                   req.Audience,
	})
	if err != nil {
		metrics.ProofUpstreamErrorsTotal.Inc()

		// Hashed-nonce providers re-sign nothing: the substituted claims
		// segment no longer matches the token's signature, and some provers
		// verify it. Degrade to a proof-less compatibility result instead of
		// failing the login.
		if provider == types.ProviderHashedNonce && errors.Is(err, types.ErrUpstreamProof) {
			log.Printf("⚠️ [Proof] Upstream rejected substituted token (iss=%s), returning compatibility result: %v",
				keyless.IssuerClaim(req.LoginToken), err)
			metrics.ProofModeTotal.WithLabelValues(provider, types.ProofModeCompatibility).Inc()
			return &types.GenerateProofResponse{
				DerivedAddress:          address.String(),
				Mode:                    types.ProofModeCompatibility,
				Provider:                provider,
				RequiresSpecialHandling: true,
			}, nil
		}
		return nil, err
	}

	metrics.ProofModeTotal.WithLabelValues(provider, mode).Inc()
	log.Printf("✅ [Proof] Proof generated: provider=%s, mode=%s, address=%s", provider, mode, address.String())

	return &types.GenerateProofResponse{
		Proof:          proof,
		DerivedAddress: address.String(),
		Mode:           mode,
		Provider:       provider,
	}, nil
}

// reconcileNonce classifies the provider family and returns the token to send
// upstream
func (s *ProofService) reconcileNonce(loginToken, tokenNonce, nonce string) (string, string, error) {
	if tokenNonce == nonce {
		return types.ProviderRawNonce, loginToken, nil
	}

	if hashedNonceMatches(tokenNonce, nonce) {
		substituted, err := keyless.SubstituteNonce(loginToken, nonce)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", types.ErrValidation, err)
		}
		log.Printf("🔁 [Proof] Hashed-nonce provider detected (iss=%s), substituting raw nonce", keyless.IssuerClaim(loginToken))
		return types.ProviderHashedNonce, substituted, nil
	}

	return "", "", fmt.Errorf("%w: token nonce %q matches neither the commitment nor its hash", types.ErrNonceMismatch, tokenNonce)
}

// hashedNonceMatches checks whether tokenNonce is SHA-256 of the raw nonce in
// either of the encodings providers are known to emit
func hashedNonceMatches(tokenNonce, nonce string) bool {
	digest := sha256.Sum256([]byte(nonce))
	return tokenNonce == base64.RawURLEncoding.EncodeToString(digest[:]) ||
		tokenNonce == hex.EncodeToString(digest[:])
}

// adaptParameterWidth narrows values wider than the prover's width limit by
// hashing and truncating, then renders the decimal big-endian integer form the
// prover consumes. Lossy by construction and applied to the outbound call only.
func adaptParameterWidth(value []byte, width int) string {
	if len(value) > width {
		digest := sha256.Sum256(value)
		value = digest[:width]
	}
	return new(big.Int).SetBytes(value).String()
}

// decodeExtendedPublicKey accepts the 33-byte extended ephemeral public key in
// hex or base64
func decodeExtendedPublicKey(encoded string) ([]byte, error) {
	if decoded, err := utils.DecodeHexBytes(encoded); err == nil && len(decoded) == 33 {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(decoded) == 33 {
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: extended ephemeral public key must decode to 33 bytes", types.ErrValidation)
}
