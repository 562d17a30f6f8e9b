// Package events defines the event payloads published to NATS
package events

import "time"

// SubmissionEvent one terminal sponsored-submission result
type SubmissionEvent struct {
	TransactionID   string    `json:"transaction_id"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	StrategyUsed    string    `json:"strategy_used,omitempty"`
	Success         bool      `json:"success"`
	Finalized       bool      `json:"finalized"`
	VMStatus        string    `json:"vm_status,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
