package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pixelmuse/api/internal/model"
)

// MemoryStore is an in-process JobStore with the same semantics as the
// Redis store. It backs tests and lets the binary come up without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*memoryRecord
	cancels map[string]bool
	ttl     time.Duration
	now     func() time.Time
}

type memoryRecord struct {
	job       *model.Job
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory job store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*memoryRecord),
		cancels: make(map[string]bool),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[job.ID]; ok && s.now().Before(rec.expiresAt) {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = &memoryRecord{job: job.Clone(), expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(jobID)
	if err != nil {
		return nil, err
	}
	return rec.job.Clone(), nil
}

func (s *MemoryStore) CompareAndSwapStatus(_ context.Context, jobID string, expected, next model.JobStatus, patch func(*model.Job)) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.live(jobID)
	if err != nil {
		return nil, err
	}
	if rec.job.Status != expected {
		return nil, ErrStatusConflict
	}

	job := rec.job.Clone()
	job.Status = next
	if next.Terminal() {
		job.CurrentStep = ""
	} else {
		job.CurrentStep = string(next)
	}
	job.UpdatedAt = s.now()
	if patch != nil {
		patch(job)
	}

	rec.job = job
	rec.expiresAt = s.now().Add(s.ttl)
	return job.Clone(), nil
}

func (s *MemoryStore) RequestCancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.live(jobID); err != nil {
		return err
	}
	s.cancels[jobID] = true
	return nil
}

func (s *MemoryStore) IsCancelRequested(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels[jobID], nil
}

// live returns the record if present and unexpired; expired records are
// reaped on access.
func (s *MemoryStore) live(jobID string) (*memoryRecord, error) {
	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(rec.expiresAt) {
		delete(s.jobs, jobID)
		delete(s.cancels, jobID)
		return nil, ErrNotFound
	}
	return rec, nil
}
