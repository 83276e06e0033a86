package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebitRequiresBalance(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	err := l.Debit(ctx, "job-1", "owner-1", 10, "generation")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	require.NoError(t, l.Deposit(ctx, "owner-1", 10))
	require.NoError(t, l.Debit(ctx, "job-1", "owner-1", 10, "generation"))

	balance, err := l.Balance(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestDebitIdempotentPerJob(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "owner-1", 100))

	require.NoError(t, l.Debit(ctx, "job-1", "owner-1", 10, "generation"))
	require.NoError(t, l.Debit(ctx, "job-1", "owner-1", 10, "generation"))
	require.NoError(t, l.Debit(ctx, "job-1", "owner-1", 10, "generation"))

	balance, err := l.Balance(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)
	assert.Len(t, l.Entries(), 1)

	// A different job debits independently.
	require.NoError(t, l.Debit(ctx, "job-2", "owner-1", 10, "generation"))
	balance, err = l.Balance(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)
}

func TestCreditIdempotentPerJob(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "job-1", "owner-1", 10, "refund"))
	require.NoError(t, l.Credit(ctx, "job-1", "owner-1", 10, "refund"))

	balance, err := l.Balance(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestDebitAndCreditAreSeparateMovements(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "owner-1", 100))

	require.NoError(t, l.Debit(ctx, "job-1", "owner-1", 10, "generation"))
	require.NoError(t, l.Credit(ctx, "job-1", "owner-1", 10, "refund"))

	hasDebit, err := l.HasMovement(ctx, "job-1", MovementDebit)
	require.NoError(t, err)
	assert.True(t, hasDebit)
	hasCredit, err := l.HasMovement(ctx, "job-1", MovementCredit)
	require.NoError(t, err)
	assert.True(t, hasCredit)

	balance, err := l.Balance(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestInvalidAmounts(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	assert.ErrorIs(t, l.Debit(ctx, "job-1", "owner-1", 0, "x"), ErrInvalidAmount)
	assert.ErrorIs(t, l.Debit(ctx, "job-1", "owner-1", -5, "x"), ErrInvalidAmount)
	assert.ErrorIs(t, l.Credit(ctx, "job-1", "owner-1", 0, "x"), ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit(ctx, "owner-1", -1), ErrInvalidAmount)
}

func TestFailedDebitLeavesNoMovement(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	err := l.Debit(ctx, "job-1", "owner-1", 10, "generation")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	has, err := l.HasMovement(ctx, "job-1", MovementDebit)
	require.NoError(t, err)
	assert.False(t, has)

	// The same job can debit later once funds exist.
	require.NoError(t, l.Deposit(ctx, "owner-1", 10))
	require.NoError(t, l.Debit(ctx, "job-1", "owner-1", 10, "generation"))
}
