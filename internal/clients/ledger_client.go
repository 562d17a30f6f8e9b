package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"

	"sponsor-backend/internal/config"
	"sponsor-backend/internal/types"
)

// feePayerAuthenticatorVariant BCS variant tag for the fee-payer transaction
// authenticator on the wire
const feePayerAuthenticatorVariant = 3

// Account authenticator variants the manual encoding path recognizes. Anything
// else fails loudly instead of producing an invalid transaction.
const (
	accountAuthenticatorEd25519      = 0
	accountAuthenticatorMultiEd25519 = 1
	accountAuthenticatorSingleKey    = 2
	accountAuthenticatorMultiKey     = 3
)

// bcsSubmitContentType content type for the node's raw submission endpoint
const bcsSubmitContentType = "application/x.aptos.signed_transaction+bcs"

// LedgerClient wraps the node client: endpoint selection, optional API-key
// header, and the build/sign/submit/wait primitives over a BCS-encoded,
// fee-payer-capable transaction model. All methods are side-effect-free except
// Submit/SubmitRawBCS, which perform network I/O.
type LedgerClient struct {
	client     *aptos.Client
	nodeURL    string
	httpClient *http.Client
	apiKey     string
	coinTypes  map[string]string
}

// NewLedgerClient creates the ledger client for the configured network
func NewLedgerClient(cfg config.LedgerConfig) (*LedgerClient, error) {
	var network aptos.NetworkConfig
	switch cfg.Network {
	case "mainnet", "main":
		network = aptos.MainnetConfig
	case "testnet", "test":
		network = aptos.TestnetConfig
	default:
		return nil, fmt.Errorf("unknown ledger network: %s", cfg.Network)
	}
	if cfg.NodeURL != "" {
		network.NodeUrl = cfg.NodeURL
	}

	client, err := aptos.NewClient(network)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	coinTypes := map[string]string{
		types.TokenTypeNative: "0x1::aptos_coin::AptosCoin",
	}
	if cfg.TokenACoinType != "" {
		coinTypes[types.TokenTypeTokenA] = cfg.TokenACoinType
	}
	if cfg.TokenBCoinType != "" {
		coinTypes[types.TokenTypeTokenB] = cfg.TokenBCoinType
	}

	log.Printf("🔧 [Ledger] Create client: network=%s, nodeUrl=%s, apiKey=%v",
		cfg.Network, network.NodeUrl, cfg.APIKey != "")

	return &LedgerClient{
		client:  client,
		nodeURL: strings.TrimRight(network.NodeUrl, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiKey:    cfg.APIKey,
		coinTypes: coinTypes,
	}, nil
}

// resolveCoinType token-to-transfer-function resolution, a pure lookup
func (c *LedgerClient) resolveCoinType(tokenType string) (*aptos.TypeTag, error) {
	coinType, ok := c.coinTypes[tokenType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedToken, tokenType)
	}
	typeTag, err := aptos.ParseTypeTag(coinType)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid coin type %q: %v", types.ErrUnsupportedToken, coinType, err)
	}
	return typeTag, nil
}

// BuildFeePayerTransfer builds a raw fee-payer transfer of amount (smallest
// unit) from sender to recipient. Chain parameters (sequence number, gas
// price, chain id) come from the node.
func (c *LedgerClient) BuildFeePayerTransfer(sender aptos.AccountAddress, recipient aptos.AccountAddress, amount uint64, tokenType string, feePayer aptos.AccountAddress) (*aptos.RawTransactionWithData, error) {
	typeTag, err := c.resolveCoinType(tokenType)
	if err != nil {
		return nil, err
	}

	recipientBytes, err := bcs.Serialize(&recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize recipient: %w", err)
	}
	amountBytes, err := bcs.SerializeU64(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize amount: %w", err)
	}

	payload := aptos.TransactionPayload{
		Payload: &aptos.EntryFunction{
			Module:   aptos.ModuleId{Address: aptos.AccountOne, Name: "aptos_account"},
			Function: "transfer_coins",
			ArgTypes: []aptos.TypeTag{*typeTag},
			Args:     [][]byte{recipientBytes, amountBytes},
		},
	}

	rawTxn, err := c.client.BuildTransactionMultiAgent(sender, payload, aptos.FeePayer(&feePayer))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build transaction: %v", types.ErrNetwork, err)
	}
	return rawTxn, nil
}

// Submit submits a structured signed transaction through the SDK path
func (c *LedgerClient) Submit(signedTxn *aptos.SignedTransaction) (string, error) {
	resp, err := c.client.SubmitTransaction(signedTxn)
	if err != nil {
		return "", fmt.Errorf("submit failed: %w", err)
	}
	return resp.Hash, nil
}

// SubmitRawBCS POSTs pre-assembled signed-transaction bytes directly to the
// node's raw submission endpoint. This is the manual fallback used when the
// SDK's structured path fails at the encoding level.
func (c *LedgerClient) SubmitRawBCS(signedBytes []byte) (string, error) {
	req, err := http.NewRequest(http.MethodPost, c.nodeURL+"/transactions", bytes.NewReader(signedBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create raw submit request: %w", err)
	}
	req.Header.Set("Content-Type", bcsSubmitContentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: raw submit request failed: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read raw submit response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("❌ [Ledger] Raw BCS submit failed: status=%d", resp.StatusCode)
		log.Printf("   Response body: %s", string(body))
		return "", fmt.Errorf("node rejected raw submission (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse raw submit response: %w", err)
	}
	return result.Hash, nil
}

// WaitForFinality blocks until the transaction is committed, returning the
// on-chain success flag and vm status
func (c *LedgerClient) WaitForFinality(txnHash string) (bool, string, error) {
	txn, err := c.client.WaitForTransaction(txnHash)
	if err != nil {
		return false, "", fmt.Errorf("%w: wait for transaction %s failed: %v", types.ErrNetwork, txnHash, err)
	}
	return txn.Success, txn.VmStatus, nil
}

// ValidateAuthenticatorVariant checks the leading uleb128 variant tag of a
// serialized account authenticator against the known variants before the
// manual path assembles anything with it
func ValidateAuthenticatorVariant(authenticatorBytes []byte) error {
	variant, _, err := readUleb128(authenticatorBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrUnsupportedAuthenticatorVariant, err)
	}
	switch variant {
	case accountAuthenticatorEd25519, accountAuthenticatorMultiEd25519,
		accountAuthenticatorSingleKey, accountAuthenticatorMultiKey:
		return nil
	default:
		return fmt.Errorf("%w: variant tag %d", types.ErrUnsupportedAuthenticatorVariant, variant)
	}
}

// EncodeFeePayerSignedTransaction hand-assembles the signed-transaction byte
// string in the exact on-wire order the chain expects: raw transaction bytes,
// fee-payer authenticator variant tag, sender authenticator bytes, empty
// secondary signer address vector, empty secondary signer vector, fee-payer
// address bytes, fee-payer authenticator bytes. The output is byte-identical
// to the SDK's structured encoding for the same inputs.
func EncodeFeePayerSignedTransaction(rawTxn *aptos.RawTransaction, senderAuthenticatorBytes []byte, feePayer aptos.AccountAddress, feePayerAuthenticator *crypto.AccountAuthenticator) ([]byte, error) {
	if err := ValidateAuthenticatorVariant(senderAuthenticatorBytes); err != nil {
		return nil, err
	}

	rawBytes, err := bcs.Serialize(rawTxn)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize raw transaction: %w", err)
	}
	feePayerAuthBytes, err := bcs.Serialize(feePayerAuthenticator)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize fee-payer authenticator: %w", err)
	}

	ser := &bcs.Serializer{}
	ser.FixedBytes(rawBytes)
	ser.Uleb128(feePayerAuthenticatorVariant)
	ser.FixedBytes(senderAuthenticatorBytes)
	ser.Uleb128(0) // no secondary signer addresses
	ser.Uleb128(0) // no secondary signers
	ser.FixedBytes(feePayer[:])
	ser.FixedBytes(feePayerAuthBytes)
	if err := ser.Error(); err != nil {
		return nil, fmt.Errorf("failed to assemble signed transaction: %w", err)
	}
	return ser.ToBytes(), nil
}

// readUleb128 decodes a leading uleb128 value from data
func readUleb128(data []byte) (uint32, int, error) {
	var value uint32
	var shift uint
	for i := 0; i < len(data); i++ {
		b := data[i]
		value |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
		if shift > 28 {
			return 0, 0, fmt.Errorf("uleb128 value too large")
		}
	}
	return 0, 0, fmt.Errorf("truncated uleb128 value")
}
