// Package webhook delivers at-least-once, HMAC-authenticated notifications to
// caller-supplied URLs with bounded exponential-backoff retries.
package webhook

import (
	"context"
	"time"
)

// Status is the delivery state machine:
// not_requested → pending → {delivered | pending(retry) | failed}.
type Status string

const (
	StatusNotRequested Status = "not_requested"
	StatusPending      Status = "pending"
	StatusDelivered    Status = "delivered"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further attempts may be made.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// DeliveryState is the store's view of one resource's delivery progress.
// Attempts only ever increases.
type DeliveryState struct {
	Status        Status
	Attempts      int
	LastAttemptAt time.Time
}

// DeliveryStore persists delivery state on the resource being notified about.
// The engine re-reads it before every retry so an external status change
// (another path marking the resource terminal) stops the loop.
type DeliveryStore interface {
	DeliveryState(ctx context.Context, resourceID string) (DeliveryState, error)
	SetDeliveryState(ctx context.Context, resourceID string, state DeliveryState) error
}

// Notice is the webhook payload. It is marshalled exactly once per scheduled
// delivery; the signature covers those exact bytes, so receivers can verify
// against the body as received.
type Notice struct {
	Event          string        `json:"event"`
	ProofID        string        `json:"proof_id"`
	Status         string        `json:"status"`
	FileHash       string        `json:"file_hash"`
	Filename       string        `json:"filename"`
	VerifyURL      string        `json:"verify_url"`
	CertificateURL string        `json:"certificate_url"`
	Blockchain     BlockchainRef `json:"blockchain"`
	Timestamp      string        `json:"timestamp"`
}

// BlockchainRef points receivers at the anchoring transaction.
type BlockchainRef struct {
	Network         string `json:"network"`
	TransactionHash string `json:"transaction_hash"`
	ExplorerURL     string `json:"explorer_url"`
}

// EventCertificationCompleted is the event emitted when a certification's
// anchoring transaction has been accepted.
const EventCertificationCompleted = "certification.completed"
