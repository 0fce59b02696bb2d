package models

import (
	"fmt"
	"time"
)

// Account holds the credit balance for an identity, keyed by an opaque
// public key string. The balance is a cached projection over the ledger
// entries; the entry log is the source of truth.
type Account struct {
	PublicKey string    `json:"PublicKey"`
	Balance   int64     `json:"Balance"` // seconds of compute time
	CreatedAt time.Time `json:"CreatedAt"`
}

type EntryKind string

const (
	EntryKindGrant       EntryKind = "grant"
	EntryKindReservation EntryKind = "reservation"
	EntryKindSettlement  EntryKind = "settlement"
	EntryKindRefund      EntryKind = "refund"
)

func ParseEntryKind(s string) (EntryKind, error) {
	switch EntryKind(s) {
	case EntryKindGrant, EntryKindReservation, EntryKindSettlement, EntryKindRefund:
		return EntryKind(s), nil
	}
	return "", fmt.Errorf("invalid ledger entry kind: %s", s)
}

// LedgerEntry is an immutable record of a single balance change. Amounts
// are stored as positive magnitudes; the kind determines the direction:
// grants and refunds credit the account, reservations and settlements
// debit it. A reservation entry stops counting against the balance once a
// settlement or refund entry exists for the same job.
type LedgerEntry struct {
	EntryID      string    `json:"EntryID"`
	Account      string    `json:"Account"`
	Counterparty string    `json:"Counterparty,omitempty"` // node ID, empty for system entries
	Amount       int64     `json:"Amount"`
	Kind         EntryKind `json:"Kind"`
	JobID        string    `json:"JobID,omitempty"`
	CreatedAt    time.Time `json:"CreatedAt"`
}

// Reservation is an ephemeral hold against an account's balance, scoped to
// a single job. The held amount is subtracted from the spendable balance
// the instant the reservation is created. The multiplier of the node the
// job was authorized against is captured here so settlement stays
// deterministic even if the node's lease has expired by then.
type Reservation struct {
	JobID      string    `json:"JobID"`
	Account    string    `json:"Account"`
	NodeID     string    `json:"NodeID"`
	HeldAmount int64     `json:"HeldAmount"`
	Multiplier float64   `json:"Multiplier"`
	ExpiresAt  time.Time `json:"ExpiresAt"`
	CreatedAt  time.Time `json:"CreatedAt"`
}

// Expired reports whether the reservation's TTL has elapsed at the given time.
func (r Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
