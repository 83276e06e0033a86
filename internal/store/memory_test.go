package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmuse/api/internal/model"
)

func pendingJob(id string) *model.Job {
	now := time.Now()
	return &model.Job{
		ID:        id,
		OwnerID:   "owner-1",
		Kind:      model.JobKindGeneration,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndLoad(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, pendingJob("job-1")))

	job, err := s.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)

	assert.Error(t, s.Create(ctx, pendingJob("job-1")))

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadReturnsCopy(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pendingJob("job-1")))

	first, err := s.Load(ctx, "job-1")
	require.NoError(t, err)
	first.Status = model.JobStatusFailed

	second, err := s.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, second.Status)
}

func TestCompareAndSwapStatus(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pendingJob("job-1")))

	updated, err := s.CompareAndSwapStatus(ctx, "job-1", model.JobStatusPending, model.JobStatusValidating, func(j *model.Job) {
		j.Progress = 5
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusValidating, updated.Status)
	assert.Equal(t, "validating", updated.CurrentStep)
	assert.Equal(t, 5, updated.Progress)

	// A stale expectation loses.
	_, err = s.CompareAndSwapStatus(ctx, "job-1", model.JobStatusPending, model.JobStatusSubmitting, nil)
	assert.ErrorIs(t, err, ErrStatusConflict)

	// Terminal states clear the step name.
	updated, err = s.CompareAndSwapStatus(ctx, "job-1", model.JobStatusValidating, model.JobStatusCompleted, nil)
	require.NoError(t, err)
	assert.Empty(t, updated.CurrentStep)
}

func TestCompareAndSwapMissingJob(t *testing.T) {
	s := NewMemoryStore(time.Hour)

	_, err := s.CompareAndSwapStatus(context.Background(), "missing", model.JobStatusPending, model.JobStatusValidating, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelFlag(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pendingJob("job-1")))

	cancelled, err := s.IsCancelRequested(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, s.RequestCancel(ctx, "job-1"))

	cancelled, err = s.IsCancelRequested(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	assert.ErrorIs(t, s.RequestCancel(ctx, "missing"), ErrNotFound)
}

func TestExpiredJobsAreReaped(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	require.NoError(t, s.Create(ctx, pendingJob("job-1")))

	current = current.Add(2 * time.Minute)
	_, err := s.Load(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// A fresh job can reuse the expired ID.
	require.NoError(t, s.Create(ctx, pendingJob("job-1")))
}

func TestCASRefreshesTTL(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	require.NoError(t, s.Create(ctx, pendingJob("job-1")))

	current = current.Add(45 * time.Second)
	_, err := s.CompareAndSwapStatus(ctx, "job-1", model.JobStatusPending, model.JobStatusValidating, nil)
	require.NoError(t, err)

	// Past the original expiry but within the refreshed window.
	current = current.Add(45 * time.Second)
	_, err = s.Load(ctx, "job-1")
	assert.NoError(t, err)
}
