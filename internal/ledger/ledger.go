package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientCredits is returned by Debit when the owner's
	// balance cannot cover the amount. The pipeline treats it as a
	// permanent failure of the finalize step.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidAmount guards against zero or negative movements.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// MovementKind distinguishes the idempotency slots per job.
type MovementKind string

const (
	MovementDebit  MovementKind = "debit"
	MovementCredit MovementKind = "credit"
)

// Entry is one immutable credit movement. At most one entry exists per
// (JobID, Kind).
type Entry struct {
	JobID     string       `json:"jobId"`
	OwnerID   string       `json:"ownerId"`
	Amount    int64        `json:"amount"`
	Kind      MovementKind `json:"kind"`
	Reason    string       `json:"reason"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Ledger is an append-only credit transaction log with idempotent
// movements keyed by job ID. Re-invoking Debit or Credit for a job that
// already has the movement is a silent no-op, which is what makes
// finalize safe to re-execute after a worker crash.
type Ledger interface {
	Debit(ctx context.Context, jobID, ownerID string, amount int64, reason string) error
	Credit(ctx context.Context, jobID, ownerID string, amount int64, reason string) error
	HasMovement(ctx context.Context, jobID string, kind MovementKind) (bool, error)
	Balance(ctx context.Context, ownerID string) (int64, error)
	Deposit(ctx context.Context, ownerID string, amount int64) error
}
