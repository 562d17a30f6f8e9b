package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"

	"sponsor-backend/internal/clients"
	"sponsor-backend/internal/events"
	"sponsor-backend/internal/keyless"
	"sponsor-backend/internal/metrics"
	"sponsor-backend/internal/types"
	"sponsor-backend/internal/utils"
)

// Ledger the chain primitives the pipeline needs. Satisfied by
// clients.LedgerClient; narrowed so submission strategies are testable without
// a node.
type Ledger interface {
	BuildFeePayerTransfer(sender aptos.AccountAddress, recipient aptos.AccountAddress, amount uint64, tokenType string, feePayer aptos.AccountAddress) (*aptos.RawTransactionWithData, error)
	Submit(signedTxn *aptos.SignedTransaction) (string, error)
	SubmitRawBCS(signedBytes []byte) (string, error)
	WaitForFinality(txnHash string) (bool, string, error)
}

// EventPublisher optional submission telemetry sink
type EventPublisher interface {
	PublishSubmissionResult(event *events.SubmissionEvent)
}

// ===== Submission strategies (ordered fallback chain) =====

// SubmissionStrategy one named way of getting signed bytes onto the chain.
// Which strategy succeeded is a first-class part of the result, not a
// side-effect of control flow.
type SubmissionStrategy interface {
	Name() string
	Submit() (string, error)
}

// sdkSubmissionStrategy deserializes the sender authenticator through the SDK
// and submits the structured fee-payer transaction
type sdkSubmissionStrategy struct {
	name               string
	ledger             Ledger
	txn                *BuiltTransaction
	authenticatorBytes []byte
}

func (s *sdkSubmissionStrategy) Name() string { return s.name }

func (s *sdkSubmissionStrategy) Submit() (string, error) {
	senderAuth := &crypto.AccountAuthenticator{}
	if err := bcs.Deserialize(senderAuth, s.authenticatorBytes); err != nil {
		return "", fmt.Errorf("failed to deserialize sender authenticator: %w", err)
	}
	signedTxn, ok := s.txn.RawTxn.ToFeePayerSignedTransaction(senderAuth, s.txn.SponsorAuth, []crypto.AccountAuthenticator{})
	if !ok {
		return "", fmt.Errorf("failed to assemble fee-payer signed transaction")
	}
	return s.ledger.Submit(signedTxn)
}

// manualSubmissionStrategy hand-assembles the on-wire signed transaction and
// POSTs it to the node's raw endpoint. Exists because SDK abstractions can lag
// on certain account types; the authenticator variant tag is validated before
// assembly.
type manualSubmissionStrategy struct {
	ledger             Ledger
	txn                *BuiltTransaction
	authenticatorBytes []byte
}

func (s *manualSubmissionStrategy) Name() string { return "manual-bcs" }

func (s *manualSubmissionStrategy) Submit() (string, error) {
	encoded, err := clients.EncodeFeePayerSignedTransaction(
		s.txn.InnerRawTxn, s.authenticatorBytes, s.txn.FeePayerAddress, s.txn.SponsorAuth)
	if err != nil {
		return "", err
	}
	return s.ledger.SubmitRawBCS(encoded)
}

// ===== Pipeline =====

// SponsoredTransactionService orchestrates the end-to-end sponsored submission
// flow: build -> cache -> sender authorization -> sponsor authorization ->
// submit -> finality, with deterministic fallbacks. Dependencies are injected;
// there is no process-wide singleton state.
type SponsoredTransactionService struct {
	ledger    Ledger
	sponsor   *SponsorKeyService
	cache     *PendingTransactionCache
	publisher EventPublisher
}

// NewSponsoredTransactionService creates the pipeline. publisher may be nil.
func NewSponsoredTransactionService(ledger Ledger, sponsor *SponsorKeyService, cache *PendingTransactionCache, publisher EventPublisher) *SponsoredTransactionService {
	return &SponsoredTransactionService{
		ledger:    ledger,
		sponsor:   sponsor,
		cache:     cache,
		publisher: publisher,
	}
}

// BuildTransfer builds the canonical fee-payer transfer, signs it as sponsor
// immediately (sponsor authorization is cheap to precompute), caches the exact
// signing message, and returns what the caller needs for out-of-band signing.
func (s *SponsoredTransactionService) BuildTransfer(req *types.BuildTransferRequest) (*types.BuildTransferResponse, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrValidation)
	}

	var sender, recipient aptos.AccountAddress
	if err := sender.ParseStringRelaxed(req.SenderAddress); err != nil {
		return nil, fmt.Errorf("%w: invalid sender address: %v", types.ErrValidation, err)
	}
	if err := recipient.ParseStringRelaxed(req.RecipientAddress); err != nil {
		return nil, fmt.Errorf("%w: invalid recipient address: %v", types.ErrValidation, err)
	}

	feePayer := s.sponsor.Address()
	rawTxn, err := s.ledger.BuildFeePayerTransfer(sender, recipient, req.Amount, req.TokenType, feePayer)
	if err != nil {
		return nil, err
	}

	inner, ok := rawTxn.Inner.(*aptos.MultiAgentWithFeePayerRawTransactionWithData)
	if !ok {
		return nil, fmt.Errorf("unexpected raw transaction variant %T", rawTxn.Inner)
	}

	sponsorAuth, err := s.sponsor.SignAsFeePayer(rawTxn)
	if err != nil {
		return nil, err
	}

	signingMessage, err := rawTxn.SigningMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to compute signing message: %w", err)
	}

	id := s.cache.Insert(&BuiltTransaction{
		RawTxn:          rawTxn,
		InnerRawTxn:     inner.RawTxn,
		FeePayerAddress: feePayer,
		SigningMessage:  signingMessage,
		SponsorAuth:     sponsorAuth,
		CreatedAt:       time.Now(),
	})

	log.Printf("✅ [Build] Sponsored transfer built: id=%s, sender=%s, token=%s, amount=%d",
		id, req.SenderAddress, req.TokenType, req.Amount)

	return &types.BuildTransferResponse{
		TransactionID:        id,
		SigningMessageBase64: base64.StdEncoding.EncodeToString(signingMessage),
		SponsorAddress:       feePayer.String(),
	}, nil
}

// SubmitTransfer looks up the cached transaction, verifies it byte-for-byte,
// obtains the sender authorization (pre-supplied or reconstructed), and walks
// the strategy chain. The cache entry is deleted after the first submission
// attempt regardless of outcome - a transaction handle is single-use.
func (s *SponsoredTransactionService) SubmitTransfer(req *types.SubmitTransferRequest) (*types.SubmitTransferResponse, error) {
	start := time.Now()
	defer func() {
		metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	}()

	entry, err := s.cache.TakeIfValid(req.TransactionID)
	if err != nil {
		return nil, err
	}

	// Mandatory integrity check: the message about to be signed over must be
	// the message stored at build time.
	recomputed, err := entry.Txn.RawTxn.SigningMessage()
	if err != nil || !bytes.Equal(recomputed, entry.Txn.SigningMessage) {
		s.cache.SetState(entry.ID, StateFailed)
		s.cache.Delete(entry.ID)
		log.Printf("🚨 [Submit] Signing message diverged for %s - refusing to submit", entry.ID)
		return nil, fmt.Errorf("%w: transaction %s", types.ErrTransactionIntegrity, entry.ID)
	}

	senderAuthBytes, err := s.senderAuthenticatorBytes(entry, req)
	if err != nil {
		return nil, err
	}
	s.cache.SetState(entry.ID, StateSenderSigned)

	strategies := []SubmissionStrategy{
		&sdkSubmissionStrategy{name: "sdk-primary", ledger: s.ledger, txn: entry.Txn, authenticatorBytes: senderAuthBytes},
	}
	if req.AlternateAuthenticatorBase64 != "" {
		alternateBytes, decodeErr := base64.StdEncoding.DecodeString(req.AlternateAuthenticatorBase64)
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: invalid alternate authenticator encoding: %v", types.ErrValidation, decodeErr)
		}
		strategies = append(strategies, &sdkSubmissionStrategy{name: "sdk-alternate", ledger: s.ledger, txn: entry.Txn, authenticatorBytes: alternateBytes})
	}
	strategies = append(strategies, &manualSubmissionStrategy{ledger: s.ledger, txn: entry.Txn, authenticatorBytes: senderAuthBytes})

	s.cache.SetState(entry.ID, StateSubmitting)
	defer s.cache.Delete(entry.ID)

	var attemptErrors []string
	for _, strategy := range strategies {
		txnHash, submitErr := strategy.Submit()
		if submitErr != nil {
			metrics.SubmissionStrategyTotal.WithLabelValues(strategy.Name(), "error").Inc()
			log.Printf("❌ [Submit] Strategy %s failed for %s: %v", strategy.Name(), entry.ID, submitErr)
			attemptErrors = append(attemptErrors, fmt.Sprintf("%s: %v", strategy.Name(), submitErr))
			continue
		}

		metrics.SubmissionStrategyTotal.WithLabelValues(strategy.Name(), "success").Inc()
		log.Printf("✅ [Submit] Strategy %s accepted %s: hash=%s", strategy.Name(), entry.ID, txnHash)
		return s.awaitFinality(entry, txnHash, strategy.Name())
	}

	s.cache.SetState(entry.ID, StateFailed)
	combined := fmt.Errorf("%w: %s", types.ErrSubmissionRejected, strings.Join(attemptErrors, "; "))
	s.publishResult(&events.SubmissionEvent{
		TransactionID: entry.ID,
		Success:       false,
		Error:         combined.Error(),
		Timestamp:     time.Now(),
	})
	return nil, combined
}

// senderAuthenticatorBytes resolves the sender authorization: either the
// pre-supplied authenticator blob, or a transient in-process reconstruction
// from the login token plus ephemeral key material. Reconstruction enforces
// the nonce binding before any signature is produced.
func (s *SponsoredTransactionService) senderAuthenticatorBytes(entry *PendingEntry, req *types.SubmitTransferRequest) ([]byte, error) {
	if req.SenderAuthenticatorBase64 != "" {
		authBytes, err := base64.StdEncoding.DecodeString(req.SenderAuthenticatorBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid sender authenticator encoding: %v", types.ErrValidation, err)
		}
		return authBytes, nil
	}

	if req.LoginToken == "" {
		return nil, fmt.Errorf("%w: sender authorization required (authenticator or login material)", types.ErrValidation)
	}

	seed, err := utils.DecodeHexBytes(req.EphemeralSeedHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ephemeral seed: %v", types.ErrValidation, err)
	}
	randomness, err := utils.DecodeHexBytes(req.RandomnessHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid randomness: %v", types.ErrValidation, err)
	}

	identity, err := keyless.Reconstruct(seed, randomness, req.MaxEpoch, req.LoginToken)
	if err != nil {
		return nil, err
	}

	signer, err := identity.Account.Signer()
	if err != nil {
		return nil, fmt.Errorf("failed to build ephemeral signer: %w", err)
	}

	authenticator, err := entry.Txn.RawTxn.Sign(signer)
	if err != nil {
		return nil, fmt.Errorf("ephemeral signing failed: %w", err)
	}
	return bcs.Serialize(authenticator)
}

// awaitFinality waits for the committed transaction. A failed wait is not a
// failed submission: the result carries the hash with finalized=false and the
// caller decides whether to poll again.
func (s *SponsoredTransactionService) awaitFinality(entry *PendingEntry, txnHash string, strategyUsed string) (*types.SubmitTransferResponse, error) {
	success, vmStatus, err := s.ledger.WaitForFinality(txnHash)

	response := &types.SubmitTransferResponse{
		Success:         true,
		TransactionHash: txnHash,
		StrategyUsed:    strategyUsed,
	}

	switch {
	case err != nil:
		log.Printf("⚠️ [Submit] Finality wait failed for %s: %v", txnHash, err)
		s.cache.SetState(entry.ID, StateSubmitting)
	case success:
		response.Finalized = true
		response.VMStatus = vmStatus
		s.cache.SetState(entry.ID, StateConfirmed)
		log.Printf("✅ [Submit] Transaction confirmed: %s (strategy=%s)", txnHash, strategyUsed)
	default:
		response.Finalized = true
		response.Success = false
		response.VMStatus = vmStatus
		response.Error = fmt.Sprintf("transaction failed on chain: %s", vmStatus)
		response.Code = types.CodeSubmissionRejected
		s.cache.SetState(entry.ID, StateFailed)
		log.Printf("❌ [Submit] Transaction failed on chain: %s, vmStatus=%s", txnHash, vmStatus)
	}

	s.publishResult(&events.SubmissionEvent{
		TransactionID:   entry.ID,
		TransactionHash: txnHash,
		StrategyUsed:    strategyUsed,
		Success:         response.Success,
		Finalized:       response.Finalized,
		VMStatus:        response.VMStatus,
		Error:           response.Error,
		Timestamp:       time.Now(),
	})
	return response, nil
}

func (s *SponsoredTransactionService) publishResult(event *events.SubmissionEvent) {
	if s.publisher != nil {
		s.publisher.PublishSubmissionResult(event)
	}
}
