package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/config"
	"github.com/pixelmuse/api/internal/model"
	"github.com/pixelmuse/api/internal/store"
	"github.com/pixelmuse/api/internal/worker"
)

var (
	ErrJobNotFound     = store.ErrNotFound
	ErrNotCompleted    = errors.New("job not completed")
	ErrAlreadyFinished = errors.New("job already finished")
)

// JobService is the narrow enqueue/status/cancel contract the pipeline
// exposes to the rest of the application. The status path reads from
// the job store only and never triggers pipeline work.
type JobService struct {
	store       store.JobStore
	asynqClient *asynq.Client
	cfg         config.PipelineConfig
	log         *zap.Logger
}

func NewJobService(js store.JobStore, asynqClient *asynq.Client, cfg config.PipelineConfig, log *zap.Logger) *JobService {
	return &JobService{
		store:       js,
		asynqClient: asynqClient,
		cfg:         cfg,
		log:         log.Named("jobs"),
	}
}

// Submit creates a job and enqueues it for the dispatcher. The caller
// has already authenticated the owner; credit sufficiency is checked by
// the pipeline at finalize time.
func (s *JobService) Submit(ctx context.Context, kind model.JobKind, ownerID string, input interface{}) (*model.SubmitResponse, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	now := time.Now()
	job := &model.Job{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Kind:      kind,
		Status:    model.JobStatusPending,
		Input:     payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := worker.NewTask(job.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	_, err = s.asynqClient.EnqueueContext(ctx, task,
		asynq.Queue(worker.QueueFor(kind)),
		asynq.MaxRetry(0),
		asynq.Timeout(s.cfg.JobDeadline),
		asynq.Retention(s.cfg.JobTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.log.Info("job submitted",
		zap.String("jobId", job.ID),
		zap.String("kind", string(kind)),
		zap.String("ownerId", ownerID))

	return &model.SubmitResponse{
		JobID:     job.ID,
		Kind:      kind,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// GetStatus returns the current view of a job.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	job, err := s.store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.StatusResponse{
		JobID:        job.ID,
		Kind:         job.Kind,
		Status:       job.Status,
		Progress:     job.Progress,
		CurrentStep:  job.CurrentStep,
		Error:        job.Error,
		RetryCount:   job.RetryCount,
		ProviderUsed: job.ProviderUsed,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}, nil
}

// GetResult returns the payload of a completed job.
func (s *JobService) GetResult(ctx context.Context, jobID string) (*model.ResultResponse, error) {
	job, err := s.store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrNotCompleted
	}
	return &model.ResultResponse{
		JobID:  job.ID,
		Kind:   job.Kind,
		Result: job.Result,
	}, nil
}

// Cancel flags the job for cooperative cancellation. It returns
// immediately; the engine stops the job at its next checkpoint.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*model.CancelResponse, error) {
	job, err := s.store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, ErrAlreadyFinished
	}
	if err := s.store.RequestCancel(ctx, jobID); err != nil {
		return nil, err
	}
	s.log.Info("cancel requested", zap.String("jobId", jobID))
	return &model.CancelResponse{JobID: jobID, Status: job.Status}, nil
}
