package keyless

import (
	"crypto/ed25519"
	"fmt"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"golang.org/x/crypto/sha3"

	"sponsor-backend/internal/types"
)

const (
	// ed25519 scheme byte used in the extended public key and in the
	// authentication key derivation
	ed25519SchemeByte = 0x00

	seedByteLength          = 32
	extendedPublicKeyLength = 33
)

// EphemeralAccount a short-lived signing identity reconstructed from the key
// material the client already holds. Exists only for the duration of one call;
// callers must not retain it past the request.
type EphemeralAccount struct {
	PrivateKey *crypto.Ed25519PrivateKey
	PublicKey  ed25519.PublicKey
	Address    aptos.AccountAddress
}

// ExtendedPublicKey scheme byte plus the 32 raw key bytes, the form the nonce
// commitment and the upstream prover both consume
func (a *EphemeralAccount) ExtendedPublicKey() []byte {
	extended := make([]byte, 0, extendedPublicKeyLength)
	extended = append(extended, ed25519SchemeByte)
	return append(extended, a.PublicKey...)
}

// Signer returns an account usable with the ledger SDK's signing primitives
func (a *EphemeralAccount) Signer() (*aptos.Account, error) {
	return aptos.NewAccountFromSigner(a.PrivateKey)
}

// DeriveEphemeral deterministically rebuilds the ephemeral account from the
// literal first 32 bytes of the supplied seed, byte-for-byte the derivation the
// client used at login
func DeriveEphemeral(seed []byte) (*EphemeralAccount, error) {
	if len(seed) < seedByteLength {
		return nil, fmt.Errorf("%w: ephemeral seed must be at least %d bytes, got %d", types.ErrValidation, seedByteLength, len(seed))
	}

	rawKey := ed25519.NewKeyFromSeed(seed[:seedByteLength])
	publicKey := rawKey.Public().(ed25519.PublicKey)

	privateKey := &crypto.Ed25519PrivateKey{}
	if err := privateKey.FromBytes(seed[:seedByteLength]); err != nil {
		return nil, fmt.Errorf("failed to build signing key: %w", err)
	}

	// Authentication key: sha3-256(pubkey || scheme byte)
	hasher := sha3.New256()
	hasher.Write(publicKey)
	hasher.Write([]byte{ed25519SchemeByte})

	var address aptos.AccountAddress
	copy(address[:], hasher.Sum(nil))

	return &EphemeralAccount{
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		Address:    address,
	}, nil
}

// AddressFromExtendedPublicKey derives the ledger address directly from the
// extended public key, for callers that hold only the public half
func AddressFromExtendedPublicKey(extendedPublicKey []byte) (aptos.AccountAddress, error) {
	var address aptos.AccountAddress
	if len(extendedPublicKey) != extendedPublicKeyLength {
		return address, fmt.Errorf("%w: extended public key must be %d bytes, got %d",
			types.ErrValidation, extendedPublicKeyLength, len(extendedPublicKey))
	}

	hasher := sha3.New256()
	hasher.Write(extendedPublicKey[1:])
	hasher.Write(extendedPublicKey[:1])
	copy(address[:], hasher.Sum(nil))
	return address, nil
}

// ReconstructedIdentity the result of a full reconstruction: the transient
// account plus the nonce it commits to
type ReconstructedIdentity struct {
	Account *EphemeralAccount
	Nonce   string
}

// Reconstruct rebuilds the ephemeral signing identity and proves that it
// actually corresponds to the presented login token: the recomputed nonce must
// equal the nonce embedded in the token's claims. Any mismatch is a hard
// failure; the provider-specific hashed-nonce exception lives in the proof
// service, not here.
func Reconstruct(seed []byte, randomness []byte, maxEpoch uint64, loginToken string) (*ReconstructedIdentity, error) {
	account, err := DeriveEphemeral(seed)
	if err != nil {
		return nil, err
	}

	blinder, err := BlinderFromRandomness(randomness)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	nonce, err := NonceCommitment(account.ExtendedPublicKey(), maxEpoch, blinder)
	if err != nil {
		return nil, err
	}

	tokenNonce, err := NonceClaim(loginToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	if tokenNonce != nonce {
		return nil, fmt.Errorf("%w: token nonce %q does not match recomputed nonce", types.ErrNonceMismatch, tokenNonce)
	}

	return &ReconstructedIdentity{Account: account, Nonce: nonce}, nil
}
