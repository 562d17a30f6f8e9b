package clients

import (
	"errors"
	"testing"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"github.com/stretchr/testify/require"

	"sponsor-backend/internal/types"
)

func testFeePayerTxn(t *testing.T) (*aptos.RawTransactionWithData, *aptos.RawTransaction, aptos.AccountAddress) {
	t.Helper()

	sender, err := aptos.NewEd25519Account()
	require.Nil(t, err)
	feePayer, err := aptos.NewEd25519Account()
	require.Nil(t, err)

	var recipient aptos.AccountAddress
	recipient[31] = 0x42
	recipientBytes, err := bcs.Serialize(&recipient)
	require.Nil(t, err)
	amountBytes, err := bcs.SerializeU64(12345)
	require.Nil(t, err)

	rawTxn := &aptos.RawTransaction{
		Sender:         sender.Address,
		SequenceNumber: 3,
		Payload: aptos.TransactionPayload{
			Payload: &aptos.EntryFunction{
				Module:   aptos.ModuleId{Address: aptos.AccountOne, Name: "aptos_account"},
				Function: "transfer_coins",
				ArgTypes: []aptos.TypeTag{},
				Args:     [][]byte{recipientBytes, amountBytes},
			},
		},
		MaxGasAmount:               2000,
		GasUnitPrice:               100,
		ExpirationTimestampSeconds: 1900000000,
		ChainId:                    4,
	}

	withData := &aptos.RawTransactionWithData{
		Variant: aptos.MultiAgentWithFeePayerRawTransactionWithDataVariant,
		Inner: &aptos.MultiAgentWithFeePayerRawTransactionWithData{
			RawTxn:           rawTxn,
			SecondarySigners: []aptos.AccountAddress{},
			FeePayer:         &feePayer.Address,
		},
	}
	return withData, rawTxn, feePayer.Address
}

// The manual assembly must produce byte-identical output to the SDK's
// structured encoding for the same transaction and authenticators.
func TestEncodeFeePayerSignedTransactionMatchesStructured(t *testing.T) {
	t.Parallel()

	withData, rawTxn, feePayerAddress := testFeePayerTxn(t)

	sender, err := aptos.NewEd25519Account()
	require.Nil(t, err)
	feePayerSigner, err := aptos.NewEd25519Account()
	require.Nil(t, err)

	senderAuth, err := withData.Sign(sender)
	require.Nil(t, err)
	feePayerAuth, err := withData.Sign(feePayerSigner)
	require.Nil(t, err)

	signedTxn, ok := withData.ToFeePayerSignedTransaction(senderAuth, feePayerAuth, []crypto.AccountAuthenticator{})
	require.True(t, ok)

	structured, err := bcs.Serialize(signedTxn)
	require.Nil(t, err)

	senderAuthBytes, err := bcs.Serialize(senderAuth)
	require.Nil(t, err)

	manual, err := EncodeFeePayerSignedTransaction(rawTxn, senderAuthBytes, feePayerAddress, feePayerAuth)
	require.Nil(t, err)

	require.Equal(t, structured, manual)

	// The transaction authenticator starts right after the raw transaction
	// bytes, tagged with the fee-payer variant
	rawBytes, err := bcs.Serialize(rawTxn)
	require.Nil(t, err)
	require.Equal(t, byte(3), manual[len(rawBytes)])
}

func TestValidateAuthenticatorVariant(t *testing.T) {
	t.Parallel()

	// The four known variants are accepted
	for _, tag := range []byte{0, 1, 2, 3} {
		require.Nil(t, ValidateAuthenticatorVariant([]byte{tag, 0x01, 0x02}))
	}

	// Unknown variant tags fail loudly before assembly
	err := ValidateAuthenticatorVariant([]byte{9, 0x01})
	require.True(t, errors.Is(err, types.ErrUnsupportedAuthenticatorVariant))

	// Empty and truncated inputs fail
	err = ValidateAuthenticatorVariant(nil)
	require.True(t, errors.Is(err, types.ErrUnsupportedAuthenticatorVariant))
	err = ValidateAuthenticatorVariant([]byte{0x80})
	require.True(t, errors.Is(err, types.ErrUnsupportedAuthenticatorVariant))
}

func TestEncodeRejectsUnknownSenderVariant(t *testing.T) {
	t.Parallel()

	withData, rawTxn, feePayerAddress := testFeePayerTxn(t)

	feePayerSigner, err := aptos.NewEd25519Account()
	require.Nil(t, err)
	feePayerAuth, err := withData.Sign(feePayerSigner)
	require.Nil(t, err)

	_, err = EncodeFeePayerSignedTransaction(rawTxn, []byte{42, 0x00}, feePayerAddress, feePayerAuth)
	require.True(t, errors.Is(err, types.ErrUnsupportedAuthenticatorVariant))
}

func TestResolveCoinType(t *testing.T) {
	t.Parallel()

	client := &LedgerClient{
		coinTypes: map[string]string{
			types.TokenTypeNative: "0x1::aptos_coin::AptosCoin",
			types.TokenTypeTokenA: "0x7::asset::TokenA",
		},
	}

	tag, err := client.resolveCoinType(types.TokenTypeNative)
	require.Nil(t, err)
	require.NotNil(t, tag)

	tag, err = client.resolveCoinType(types.TokenTypeTokenA)
	require.Nil(t, err)
	require.NotNil(t, tag)

	// tokenB was never configured on this client
	_, err = client.resolveCoinType(types.TokenTypeTokenB)
	require.True(t, errors.Is(err, types.ErrUnsupportedToken))

	_, err = client.resolveCoinType("dogecoin")
	require.True(t, errors.Is(err, types.ErrUnsupportedToken))
}
