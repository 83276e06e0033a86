package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger mirrors RedisLedger semantics in-process for tests and
// Redis-less development.
type MemoryLedger struct {
	mu        sync.Mutex
	balances  map[string]int64
	movements map[string]Entry // key: jobID + "/" + kind
	entries   []Entry
}

// NewMemoryLedger creates an in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:  make(map[string]int64),
		movements: make(map[string]Entry),
	}
}

func (l *MemoryLedger) Debit(_ context.Context, jobID, ownerID string, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.move(jobID, ownerID, -amount, MovementDebit, reason)
}

func (l *MemoryLedger) Credit(_ context.Context, jobID, ownerID string, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.move(jobID, ownerID, amount, MovementCredit, reason)
}

func (l *MemoryLedger) move(jobID, ownerID string, signed int64, kind MovementKind, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := jobID + "/" + string(kind)
	if _, ok := l.movements[key]; ok {
		return nil
	}
	if signed < 0 && l.balances[ownerID]+signed < 0 {
		return ErrInsufficientCredits
	}

	entry := Entry{
		JobID:     jobID,
		OwnerID:   ownerID,
		Amount:    signed,
		Kind:      kind,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	l.balances[ownerID] += signed
	l.movements[key] = entry
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryLedger) HasMovement(_ context.Context, jobID string, kind MovementKind) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.movements[jobID+"/"+string(kind)]
	return ok, nil
}

func (l *MemoryLedger) Balance(_ context.Context, ownerID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[ownerID], nil
}

func (l *MemoryLedger) Deposit(_ context.Context, ownerID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[ownerID] += amount
	return nil
}

// Entries returns a copy of the append-only log, used by tests.
func (l *MemoryLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
