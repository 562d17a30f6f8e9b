package types

import "encoding/json"

// Token type enum for the build API
const (
	TokenTypeNative = "native"
	TokenTypeTokenA = "tokenA"
	TokenTypeTokenB = "tokenB"
)

// BuildTransferRequest builds a sponsored (fee-payer) transfer.
// Amount is in the token's smallest unit.
type BuildTransferRequest struct {
	SenderAddress    string `json:"sender_address" binding:"required"`
	RecipientAddress string `json:"recipient_address" binding:"required"`
	Amount           uint64 `json:"amount" binding:"required"`
	TokenType        string `json:"token_type" binding:"required"`
}

// BuildTransferResponse returns what the caller needs for out-of-band signing
type BuildTransferResponse struct {
	TransactionID        string `json:"transaction_id"`
	SigningMessageBase64 string `json:"signing_message_base64"`
	SponsorAddress       string `json:"sponsor_address"`
}

// SubmitTransferRequest submits a previously built transfer. The sender
// authorization comes either as a pre-computed authenticator blob, or as login
// token + ephemeral key material for transient in-process reconstruction.
// AlternateAuthenticatorBase64 is a second encoding of the same signature that
// the pipeline tries when the primary one is rejected.
type SubmitTransferRequest struct {
	TransactionID                string `json:"transaction_id" binding:"required"`
	SenderAuthenticatorBase64    string `json:"sender_authenticator_base64,omitempty"`
	AlternateAuthenticatorBase64 string `json:"alternate_authenticator_base64,omitempty"`

	// Direct reconstruction path (no authenticator supplied)
	LoginToken       string `json:"login_token,omitempty"`
	EphemeralSeedHex string `json:"ephemeral_seed_hex,omitempty"`
	RandomnessHex    string `json:"randomness_hex,omitempty"`
	MaxEpoch         uint64 `json:"max_epoch,omitempty"`
}

// SubmitTransferResponse terminal result of one submission; never mutated
type SubmitTransferResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	StrategyUsed    string `json:"strategy_used,omitempty"`
	Finalized       bool   `json:"finalized"`
	VMStatus        string `json:"vm_status,omitempty"`
	Error           string `json:"error,omitempty"`
	Code            string `json:"code,omitempty"`
}

// GenerateProofRequest mirrors the upstream prover parameters, with this
// system's wider 32-byte salt/randomness accepted in hex
type GenerateProofRequest struct {
	LoginToken                 string `json:"login_token" binding:"required"`
	ExtendedEphemeralPublicKey string `json:"extended_ephemeral_public_key" binding:"required"`
	MaxEpoch                   uint64 `json:"max_epoch" binding:"required"`
	RandomnessHex              string `json:"randomness" binding:"required"`
	SaltHex                    string `json:"salt" binding:"required"`
	KeyClaimName               string `json:"key_claim_name"`
	Audience                   string `json:"audience"`
}

// Proof generation modes reported back to the caller
const (
	ProofModeStandard         = "standard"
	ProofModeNonceSubstituted = "nonce-substituted"
	ProofModeCompatibility    = "compatibility"
)

// Provider families recognized by the nonce reconciliation step
const (
	ProviderRawNonce    = "raw-nonce"
	ProviderHashedNonce = "hashed-nonce"
)

// GenerateProofResponse stateless per-call proof result
type GenerateProofResponse struct {
	Proof                   json.RawMessage `json:"proof,omitempty"`
	DerivedAddress          string          `json:"derived_address"`
	Mode                    string          `json:"mode"`
	Provider                string          `json:"provider"`
	RequiresSpecialHandling bool            `json:"requires_special_handling"`
}
