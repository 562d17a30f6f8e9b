package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSponsorKeyService(t *testing.T) {
	t.Parallel()

	service, err := NewSponsorKeyService(testSponsorKeyHex)
	require.Nil(t, err)
	addr := service.Address()
	require.NotEqual(t, "", addr.String())
}

func TestNewSponsorKeyServiceRejectsBadKeyMaterial(t *testing.T) {
	t.Parallel()

	_, err := NewSponsorKeyService("")
	require.NotNil(t, err)

	// 31 bytes of key material is one short of an ed25519 seed
	_, err = NewSponsorKeyService(testSponsorKeyHex[:len(testSponsorKeyHex)-2])
	require.NotNil(t, err)

	_, err = NewSponsorKeyService("not-hex-at-all")
	require.NotNil(t, err)
}
