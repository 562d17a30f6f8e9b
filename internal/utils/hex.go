// Package utils small pure helpers shared across services
package utils

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeHexBytes decodes a hex string with or without 0x prefix
func DecodeHexBytes(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty hex string")
	}
	if len(trimmed)%2 != 0 {
		trimmed = "0" + trimmed
	}
	data, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return data, nil
}

// EncodeHexBytes encodes bytes as 0x-prefixed lowercase hex
func EncodeHexBytes(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}
