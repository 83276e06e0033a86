package store

import (
	"context"
	"errors"

	"github.com/pixelmuse/api/internal/model"
)

var (
	// ErrNotFound is returned when the job does not exist or its TTL
	// has elapsed.
	ErrNotFound = errors.New("job not found")
	// ErrStatusConflict is returned by CompareAndSwapStatus when the
	// stored status no longer matches the expectation. Callers treat it
	// as a benign no-op: it means another executor already moved the
	// job.
	ErrStatusConflict = errors.New("job status conflict")
)

// JobStore persists job state with a TTL. CompareAndSwapStatus is the
// only mutation primitive the engine uses; the optimistic status check
// turns accidental double-dispatch into a safe no-op.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Load(ctx context.Context, jobID string) (*model.Job, error)
	// CompareAndSwapStatus atomically moves the job from expected to
	// next, applying patch to the stored record, and returns the
	// updated job. patch runs after the status fields are set.
	CompareAndSwapStatus(ctx context.Context, jobID string, expected, next model.JobStatus, patch func(*model.Job)) (*model.Job, error)
	RequestCancel(ctx context.Context, jobID string) error
	IsCancelRequested(ctx context.Context, jobID string) (bool, error)
}
