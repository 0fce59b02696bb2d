package apimodels

import (
	"time"

	"github.com/100monkeys-ai/monkey-troop/pkg/ledger"
	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

// HTTP headers carried on requests for log correlation.
const (
	HTTPHeaderClientID  = "X-Troop-Client-ID"
	HTTPHeaderRequestID = "X-Request-ID"
)

type HealthzResponse struct {
	Status string `json:"Status"`
}

type PublicKeyResponse struct {
	// PublicKeyPEM is the coordinator's RSA public key, used by workers to
	// verify job tickets offline.
	PublicKeyPEM string `json:"PublicKeyPEM"`
	KeyID        string `json:"KeyID"`
}

type HeartbeatRequest struct {
	NodeID     string              `json:"NodeID"`
	Address    string              `json:"Address"`
	Status     string              `json:"Status,omitempty"`
	Models     []string            `json:"Models"`
	Engines    []models.Engine     `json:"Engines,omitempty"`
	Hardware   models.HardwareInfo `json:"Hardware,omitempty"`
	Multiplier float64             `json:"Multiplier,omitempty"`
}

type HeartbeatResponse struct {
	Lease models.NodeLease `json:"Lease"`
}

type ListPeersResponse struct {
	Peers []models.NodeLease `json:"Peers"`
}

// ModelAvailability summarizes how many live nodes can serve a model.
type ModelAvailability struct {
	Model     string `json:"Model"`
	NodeCount int    `json:"NodeCount"`
	// NativeCount is how many of those nodes serve the model on their
	// highest-priority engine.
	NativeCount int `json:"NativeCount"`
}

type ListModelsResponse struct {
	Models []ModelAvailability `json:"Models"`
}

type AuthorizeRequest struct {
	// Identity is the requester's public key fingerprint, the account the
	// job is charged against.
	Identity string `json:"Identity"`
	Model    string `json:"Model"`
	// MaxDurationSeconds bounds the credit held for the job. Zero means the
	// server default.
	MaxDurationSeconds int64 `json:"MaxDurationSeconds,omitempty"`
}

type AuthorizeResponse struct {
	Ticket      string    `json:"Ticket"`
	JobID       string    `json:"JobID"`
	NodeID      string    `json:"NodeID"`
	NodeAddress string    `json:"NodeAddress"`
	ExpiresAt   time.Time `json:"ExpiresAt"`
	// HeldAmount is the credit-seconds reserved for this job.
	HeldAmount int64 `json:"HeldAmount"`
	Balance    int64 `json:"Balance"`
}

type ReceiptRequest struct {
	JobID           string `json:"JobID"`
	NodeID          string `json:"NodeID"`
	DurationSeconds int64  `json:"DurationSeconds"`
	// Signature is the HMAC receipt computed by the worker over the job
	// identity and duration.
	Signature string `json:"Signature"`
}

type ReceiptResponse struct {
	Settlement ledger.Settlement `json:"Settlement"`
}

type BalanceResponse struct {
	Identity string `json:"Identity"`
	Balance  int64  `json:"Balance"`
}

type HistoryResponse struct {
	Identity string               `json:"Identity"`
	Entries  []models.LedgerEntry `json:"Entries"`
}

type HardwareChallengeRequest struct {
	NodeID string `json:"NodeID"`
}

type HardwareChallengeResponse struct {
	// Nonce must be echoed back on verify, binding the benchmark run to
	// this challenge.
	Nonce     string    `json:"Nonce"`
	Model     string    `json:"Model"`
	Prompt    string    `json:"Prompt"`
	ExpiresAt time.Time `json:"ExpiresAt"`
}

type HardwareVerifyRequest struct {
	NodeID string `json:"NodeID"`
	Nonce  string `json:"Nonce"`
	// ProofHash is the hex SHA-256 of the benchmark output, tying the
	// reported duration to a run that actually produced tokens.
	ProofHash string `json:"ProofHash"`
	// DurationSeconds is how long the benchmark workload took on the node.
	DurationSeconds float64 `json:"DurationSeconds"`
}

type HardwareVerifyResponse struct {
	NodeID     string  `json:"NodeID"`
	Multiplier float64 `json:"Multiplier"`
	Tier       string  `json:"Tier"`
}
