package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/model"
	"github.com/pixelmuse/api/internal/pipeline"
	"github.com/pixelmuse/api/internal/store"
)

// Task types and queues. Each job kind gets its own weighted queue so
// generation bursts cannot starve analysis jobs and vice versa.
const (
	TaskTypeGeneration = "pipeline:generation"
	TaskTypeAnalysis   = "pipeline:analysis"

	QueueGeneration = "generation"
	QueueAnalysis   = "analysis"
)

type taskPayload struct {
	JobID string        `json:"jobId"`
	Kind  model.JobKind `json:"kind"`
}

// NewTask builds the queue task for a job.
func NewTask(jobID string, kind model.JobKind) (*asynq.Task, error) {
	data, err := json.Marshal(taskPayload{JobID: jobID, Kind: kind})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeFor(kind), data), nil
}

// TaskTypeFor maps a job kind to its task type.
func TaskTypeFor(kind model.JobKind) string {
	if kind == model.JobKindTemplateAnalysis {
		return TaskTypeAnalysis
	}
	return TaskTypeGeneration
}

// QueueFor maps a job kind to its queue.
func QueueFor(kind model.JobKind) string {
	if kind == model.JobKindTemplateAnalysis {
		return QueueAnalysis
	}
	return QueueGeneration
}

// Worker runs the pipeline engine for dequeued jobs. Retries and poll
// waits never hold a worker slot: the engine suspends and the job is
// re-enqueued with a not-before delay.
type Worker struct {
	engine *pipeline.Engine
	client *asynq.Client
	log    *zap.Logger
}

// New creates a worker bound to the engine and the queue client used
// for delayed re-admission.
func New(engine *pipeline.Engine, client *asynq.Client, log *zap.Logger) *Worker {
	return &Worker{engine: engine, client: client, log: log.Named("worker")}
}

// ProcessTask handles one dequeued job. The pipeline owns all retry
// semantics, so tasks are always enqueued with MaxRetry(0); returning an
// error here only surfaces in logs.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload taskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	outcome, err := w.engine.Run(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Job expired from the store while queued; nothing to do.
			w.log.Warn("dropping task for expired job", zap.String("jobId", payload.JobID))
			return nil
		}
		w.log.Error("engine run failed", zap.String("jobId", payload.JobID), zap.Error(err))
		return err
	}

	if outcome.Suspended {
		task, err := NewTask(payload.JobID, payload.Kind)
		if err != nil {
			return err
		}
		_, err = w.client.EnqueueContext(ctx, task,
			asynq.Queue(QueueFor(payload.Kind)),
			asynq.MaxRetry(0),
			asynq.ProcessIn(outcome.Delay),
		)
		if err != nil {
			w.log.Error("failed to re-enqueue suspended job",
				zap.String("jobId", payload.JobID), zap.Error(err))
			return err
		}
		w.log.Debug("job suspended",
			zap.String("jobId", payload.JobID),
			zap.Duration("delay", outcome.Delay))
	}
	return nil
}
