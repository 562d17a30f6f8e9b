package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"sponsor-backend/internal/config"
	"sponsor-backend/internal/types"
)

// ProverClient upstream proof service client
type ProverClient struct {
	BaseURL string
	Client  *http.Client
}

// NewProverClient creates a new prover client. Proof generation is slow; the
// default timeout is 120 seconds.
func NewProverClient(cfg config.ProverConfig) *ProverClient {
	timeout := 120 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	log.Printf("🔧 [Prover] Create client: BaseURL=%s, Timeout=%v", cfg.BaseURL, timeout)

	return &ProverClient{
		BaseURL: cfg.BaseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// ProverRequest request body for the upstream proof service. Salt and
// randomness are decimal big-endian integers in the (possibly adapted) width
// the service accepts.
type ProverRequest struct {
	JWT                        string `json:"jwt"`
	ExtendedEphemeralPublicKey string `json:"extended_ephemeral_public_key"`
	MaxEpoch                   uint64 `json:"max_epoch"`
	Randomness                 string `json:"jwt_randomness"`
	Salt                       string `json:"salt"`
	KeyClaimName               string `json:"key_claim_name"`
	Audience                   string `json:"audience,omitempty"`
}

// GenerateProof calls the upstream proof service. The raw proof blob is
// returned untouched; interpretation is the caller's business.
func (c *ProverClient) GenerateProof(req *ProverRequest) (json.RawMessage, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	log.Printf("📤 [Prover] Sending proof request to %s/v1 (max_epoch=%d, claim=%s)",
		c.BaseURL, req.MaxEpoch, req.KeyClaimName)

	resp, err := c.Client.Post(c.BaseURL+"/v1", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		// Timeout is a retryable network condition, not proof of failure
		return nil, fmt.Errorf("%w: failed to reach proof service: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [Prover] Proof generation failed: status=%d", resp.StatusCode)
		log.Printf("   Response body: %s", string(body))
		return nil, fmt.Errorf("%w: proof service returned status %d: %s", types.ErrUpstreamProof, resp.StatusCode, string(body))
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: proof service returned non-JSON body", types.ErrUpstreamProof)
	}
	return json.RawMessage(body), nil
}
