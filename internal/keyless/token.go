package keyless

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(segment string) ([]byte, error) {
	// Tolerate both padded and unpadded segments
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
}

// NonceClaim extracts the nonce from the login token's claims segment.
// No signature verification happens here - signature trust is delegated to the
// identity provider's own verification elsewhere.
func NonceClaim(loginToken string) (string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(loginToken, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse login token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("login token has no parsable claims")
	}

	nonce, ok := claims["nonce"].(string)
	if !ok || nonce == "" {
		return "", fmt.Errorf("login token has no nonce claim")
	}
	return nonce, nil
}

// IssuerClaim extracts the iss claim, used for the provider tag in proof results
func IssuerClaim(loginToken string) string {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(loginToken, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	iss, _ := claims["iss"].(string)
	return iss
}

// SubstituteNonce replaces the nonce field inside the token's claims segment
// with rawNonce, leaving the header and the original cryptographic signature
// segment untouched. This is the compatibility shim for providers that embed
// SHA-256(nonce) instead of the raw nonce: the upstream prover recomputes the
// raw nonce itself and would reject the hashed form.
//
// The output claims segment uses unpadded base64url, the encoding identity
// providers emit.
func SubstituteNonce(loginToken string, rawNonce string) (string, error) {
	parts := strings.Split(loginToken, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("login token must have 3 segments, got %d", len(parts))
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return "", fmt.Errorf("failed to decode claims segment: %w", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("failed to parse claims segment: %w", err)
	}
	if _, ok := claims["nonce"]; !ok {
		return "", fmt.Errorf("claims segment has no nonce field")
	}

	claims["nonce"] = rawNonce
	modified, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to re-encode claims segment: %w", err)
	}

	return parts[0] + "." + base64URLEncode(modified) + "." + parts[2], nil
}
