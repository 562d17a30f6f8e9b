package services

import (
	"fmt"
	"log"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
)

// SponsorKeyService holds the operator's fee-payer key. Loaded once at process
// start; the key never leaves this component - the only operation is signing a
// specific transaction as fee-payer. Signing is a pure function of (key,
// message), so the service is safe for concurrent use without locking.
type SponsorKeyService struct {
	account *aptos.Account
}

// NewSponsorKeyService loads the sponsor identity from hex key material.
// Absent or malformed key material must prevent the process from starting;
// callers treat any error here as fatal.
func NewSponsorKeyService(privateKeyHex string) (*SponsorKeyService, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("sponsor private key is empty")
	}

	privateKey := &crypto.Ed25519PrivateKey{}
	if err := privateKey.FromHex(privateKeyHex); err != nil {
		return nil, fmt.Errorf("malformed sponsor private key: %w", err)
	}

	account, err := aptos.NewAccountFromSigner(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sponsor account: %w", err)
	}

	log.Printf("✅ [Sponsor] Loaded sponsor identity: %s", account.Address.String())

	return &SponsorKeyService{account: account}, nil
}

// Address the sponsor's derived ledger address
func (s *SponsorKeyService) Address() aptos.AccountAddress {
	return s.account.Address
}

// SignAsFeePayer signs the exact transaction as fee-payer. Each call produces
// an independent signature over its own transaction.
func (s *SponsorKeyService) SignAsFeePayer(rawTxn *aptos.RawTransactionWithData) (*crypto.AccountAuthenticator, error) {
	authenticator, err := rawTxn.Sign(s.account)
	if err != nil {
		return nil, fmt.Errorf("fee-payer signing failed: %w", err)
	}
	return authenticator, nil
}
