// Package types provides common type definitions used across the backend
package types

import (
	"errors"
	"net/http"
)

// API error codes surfaced in JSON payloads
const (
	CodeValidationError                = "VALIDATION_ERROR"
	CodeNonceMismatch                  = "NONCE_MISMATCH"
	CodeTransactionIntegrityError      = "TRANSACTION_INTEGRITY_ERROR"
	CodeTransactionNotFound            = "TRANSACTION_NOT_FOUND"
	CodeNetworkError                   = "NETWORK_ERROR"
	CodeUnsupportedToken               = "UNSUPPORTED_TOKEN"
	CodeUnsupportedAuthenticatorVariant = "UNSUPPORTED_AUTHENTICATOR_VARIANT"
	CodeSubmissionRejected             = "SUBMISSION_REJECTED"
	CodeCustomProverError              = "CUSTOM_PROVER_ERROR"
)

// Sentinel errors for the sponsored submission pipeline and the prover.
// Handlers map these to HTTP status + code; none of them is retried internally.
var (
	// ErrValidation bad request shape - 400, never retried
	ErrValidation = errors.New("invalid request")

	// ErrNonceMismatch security-critical: the presented ephemeral key material
	// does not correspond to the login token. Always fatal, never retried.
	ErrNonceMismatch = errors.New("nonce mismatch between ephemeral key material and login token")

	// ErrTransactionIntegrity security-critical: the recomputed signing message
	// diverged from the bytes stored at build time. Always fatal.
	ErrTransactionIntegrity = errors.New("signing message integrity check failed")

	// ErrTransactionNotFound entry absent or expired - caller must rebuild
	ErrTransactionNotFound = errors.New("transaction not found or expired")

	// ErrNetwork transient network failure - retryable by the caller with backoff
	ErrNetwork = errors.New("network error")

	// ErrUnsupportedToken configuration/programmer error, fatal
	ErrUnsupportedToken = errors.New("unsupported token type")

	// ErrUnsupportedAuthenticatorVariant the manual encoding path refuses to
	// assemble bytes for an authenticator variant it does not recognize
	ErrUnsupportedAuthenticatorVariant = errors.New("unrecognized account authenticator variant")

	// ErrSubmissionRejected chain-level rejection, surfaced verbatim, never retried
	ErrSubmissionRejected = errors.New("transaction rejected by chain")

	// ErrUpstreamProof upstream proof service failure
	ErrUpstreamProof = errors.New("upstream proof service error")
)

// CodeForError maps a pipeline error to its API error code
func CodeForError(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidationError
	case errors.Is(err, ErrNonceMismatch):
		return CodeNonceMismatch
	case errors.Is(err, ErrTransactionIntegrity):
		return CodeTransactionIntegrityError
	case errors.Is(err, ErrTransactionNotFound):
		return CodeTransactionNotFound
	case errors.Is(err, ErrNetwork):
		return CodeNetworkError
	case errors.Is(err, ErrUnsupportedToken):
		return CodeUnsupportedToken
	case errors.Is(err, ErrUnsupportedAuthenticatorVariant):
		return CodeUnsupportedAuthenticatorVariant
	case errors.Is(err, ErrSubmissionRejected):
		return CodeSubmissionRejected
	case errors.Is(err, ErrUpstreamProof):
		return CodeCustomProverError
	default:
		return CodeSubmissionRejected
	}
}

// StatusForError maps a pipeline error to an HTTP status
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnsupportedToken):
		return http.StatusBadRequest
	case errors.Is(err, ErrNonceMismatch), errors.Is(err, ErrUpstreamProof):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}
