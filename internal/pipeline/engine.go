package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/bus"
	"github.com/pixelmuse/api/internal/config"
	"github.com/pixelmuse/api/internal/ledger"
	"github.com/pixelmuse/api/internal/model"
	"github.com/pixelmuse/api/internal/provider"
	"github.com/pixelmuse/api/internal/store"
	"github.com/pixelmuse/api/internal/template"
)

// Outcome tells the dispatcher what to do with the worker slot: either
// the job reached a terminal state (or was handed off), or it must be
// re-enqueued after Delay.
type Outcome struct {
	Suspended bool
	Delay     time.Duration
}

// Engine drives a job through its ordered step chain. It is the single
// writer for a job's state: every mutation goes through the store's CAS
// primitive and every checkpoint publishes a progress event.
type Engine struct {
	store  store.JobStore
	ledger ledger.Ledger
	bus    *bus.Bus
	chains map[model.JobKind][]Step
	retry  BackoffPolicy
	poll   BackoffPolicy
	cfg    config.PipelineConfig
	log    *zap.Logger
	now    func() time.Time
}

// New wires the engine with the production step chains.
func New(
	js store.JobStore,
	lg ledger.Ledger,
	b *bus.Bus,
	providers *provider.Adapter,
	downloader *provider.Downloader,
	catalog template.Catalog,
	cfg config.PipelineConfig,
	log *zap.Logger,
) *Engine {
	chains := map[model.JobKind][]Step{
		model.JobKindGeneration:       GenerationChain(providers, catalog, cfg),
		model.JobKindTemplateAnalysis: AnalysisChain(providers, downloader, catalog),
	}
	return NewWithChains(js, lg, b, chains, cfg, log)
}

// NewWithChains wires the engine with explicit step chains; tests use it
// to drive the loop with scripted steps.
func NewWithChains(
	js store.JobStore,
	lg ledger.Ledger,
	b *bus.Bus,
	chains map[model.JobKind][]Step,
	cfg config.PipelineConfig,
	log *zap.Logger,
) *Engine {
	return &Engine{
		store:  js,
		ledger: lg,
		bus:    b,
		chains: chains,
		retry: BackoffPolicy{
			Base:            cfg.RetryBase,
			RateLimitedBase: cfg.RetryRateLimitedBase,
			MaxDelay:        cfg.RetryMaxDelay,
		},
		poll: BackoffPolicy{
			Base:     cfg.PollBase,
			MaxDelay: cfg.PollMaxDelay,
		},
		cfg: cfg,
		log: log.Named("engine"),
		now: time.Now,
	}
}

// Run executes the job until it reaches a terminal state or suspends for
// a delayed re-enqueue. Re-invoking Run on a terminal or already-moved
// job is a no-op, which is what makes crash-and-resume safe.
func (e *Engine) Run(ctx context.Context, jobID string) (Outcome, error) {
	for {
		job, err := e.store.Load(ctx, jobID)
		if err != nil {
			return Outcome{}, err
		}
		if job.Status.Terminal() {
			return Outcome{}, nil
		}

		// The wall-clock deadline overrides any remaining retry budget.
		if e.now().Sub(job.CreatedAt) > e.cfg.JobDeadline {
			e.failJob(ctx, job, model.NewJobError(model.CodeDeadlineExceeded,
				fmt.Sprintf("job exceeded %s deadline", e.cfg.JobDeadline), false))
			return Outcome{}, nil
		}

		// Cancellation checkpoint: between steps and after every poll.
		cancelled, err := e.store.IsCancelRequested(ctx, jobID)
		if err != nil {
			return Outcome{}, err
		}
		if cancelled {
			e.cancelJob(ctx, job)
			return Outcome{}, nil
		}

		chain, ok := e.chains[job.Kind]
		if !ok || len(chain) == 0 {
			e.failJob(ctx, job, model.NewJobError(model.CodeInternalError,
				fmt.Sprintf("no pipeline for kind %q", job.Kind), false))
			return Outcome{}, nil
		}

		if job.Status == model.JobStatusPending {
			if stop := e.startJob(ctx, job, chain[0]); stop {
				return Outcome{}, nil
			}
			continue
		}

		idx := stepIndex(chain, job.Status)
		if idx < 0 {
			e.failJob(ctx, job, model.NewJobError(model.CodeInternalError,
				fmt.Sprintf("no step for status %q", job.Status), false))
			return Outcome{}, nil
		}
		step := chain[idx]

		res := step.Run(ctx, job)
		switch res.kind {
		case resultAdvance:
			if idx == len(chain)-1 {
				e.completeJob(ctx, job, step)
				return Outcome{}, nil
			}
			next := chain[idx+1]
			updated, err := e.store.CompareAndSwapStatus(ctx, jobID, step.Status(), next.Status(), func(j *model.Job) {
				j.Progress = step.Target()
				j.StepRetries = 0
				copyPayload(j, job)
			})
			if err != nil {
				return e.swallowConflict(err)
			}
			e.publish(updated, "")

		case resultWait:
			attempts := 1
			if job.ProviderTask != nil {
				job.ProviderTask.PollAttempts++
				attempts = job.ProviderTask.PollAttempts
			}
			if attempts > e.cfg.MaxPollAttempts {
				e.failJob(ctx, job, model.NewJobError(model.CodeProviderTimeout,
					"provider did not finish within the polling budget", false))
				return Outcome{}, nil
			}
			if _, err := e.store.CompareAndSwapStatus(ctx, jobID, step.Status(), step.Status(), func(j *model.Job) {
				copyPayload(j, job)
			}); err != nil {
				return e.swallowConflict(err)
			}
			delay, _ := e.poll.NextDelay(attempts-1, model.ErrorClassTransient)
			return Outcome{Suspended: true, Delay: delay}, nil

		case resultRetry:
			delay, retryable := e.retry.NextDelay(job.StepRetries, res.class)
			if !retryable || job.StepRetries+1 >= e.cfg.MaxStepAttempts {
				e.failJob(ctx, job, model.NewJobError(model.CodeRetriesExhausted,
					fmt.Sprintf("step %s failed after %d attempts: %s", step.Status(), job.StepRetries+1, res.err.Message), false))
				return Outcome{}, nil
			}
			updated, err := e.store.CompareAndSwapStatus(ctx, jobID, step.Status(), step.Status(), func(j *model.Job) {
				j.StepRetries++
				j.RetryCount++
				copyPayload(j, job)
			})
			if err != nil {
				return e.swallowConflict(err)
			}
			e.log.Info("step retry scheduled",
				zap.String("jobId", jobID),
				zap.String("step", string(step.Status())),
				zap.Int("retryCount", updated.RetryCount),
				zap.Duration("delay", delay))
			e.publish(updated, fmt.Sprintf("retrying %s: %s", step.Status(), res.err.Message))
			return Outcome{Suspended: true, Delay: delay}, nil

		case resultFail:
			e.failJob(ctx, job, res.err)
			return Outcome{}, nil
		}
	}
}

// startJob moves a pending job into its first step. Returns true when
// the caller should stop (lost the CAS to another executor).
func (e *Engine) startJob(ctx context.Context, job *model.Job, first Step) bool {
	now := e.now()
	updated, err := e.store.CompareAndSwapStatus(ctx, job.ID, model.JobStatusPending, first.Status(), func(j *model.Job) {
		j.StartedAt = &now
	})
	if err != nil {
		if !errors.Is(err, store.ErrStatusConflict) {
			e.log.Error("failed to start job", zap.String("jobId", job.ID), zap.Error(err))
		}
		return true
	}
	e.publish(updated, "")
	return false
}

// completeJob debits the credit cost and marks the job completed. The
// debit is idempotent on (jobID, debit), so a crash between the debit
// and the CAS re-runs harmlessly. A job is never marked Completed with
// an unresolved debit.
func (e *Engine) completeJob(ctx context.Context, job *model.Job, last Step) {
	cost := e.creditCost(job.Kind)
	if err := e.ledger.Debit(ctx, job.ID, job.OwnerID, cost, string(job.Kind)); err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			e.failJob(ctx, job, model.NewJobError(model.CodeInsufficientCredits,
				fmt.Sprintf("balance below the %d credit cost", cost), false))
			return
		}
		e.failJob(ctx, job, model.NewJobError(model.CodeLedgerError,
			"credit debit failed: "+err.Error(), false))
		return
	}

	now := e.now()
	updated, err := e.store.CompareAndSwapStatus(ctx, job.ID, last.Status(), model.JobStatusCompleted, func(j *model.Job) {
		j.Progress = 100
		j.CompletedAt = &now
		copyPayload(j, job)
		j.ProviderTask = nil
		j.Scratch = nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrStatusConflict) {
			e.log.Error("failed to complete job", zap.String("jobId", job.ID), zap.Error(err))
		}
		return
	}
	e.publish(updated, "done")
	e.log.Info("job completed", zap.String("jobId", job.ID), zap.String("kind", string(job.Kind)))
}

// failJob marks the job terminally failed. The ledger is untouched:
// failed and cancelled jobs never cost credits.
func (e *Engine) failJob(ctx context.Context, job *model.Job, jobErr *model.JobError) {
	now := e.now()
	updated, err := e.store.CompareAndSwapStatus(ctx, job.ID, job.Status, model.JobStatusFailed, func(j *model.Job) {
		j.Error = jobErr
		j.CompletedAt = &now
		copyPayload(j, job)
		j.ProviderTask = nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrStatusConflict) {
			e.log.Error("failed to fail job", zap.String("jobId", job.ID), zap.Error(err))
		}
		return
	}
	e.publish(updated, jobErr.Message)
	e.log.Warn("job failed",
		zap.String("jobId", job.ID),
		zap.String("code", jobErr.Code),
		zap.String("message", jobErr.Message))
}

func (e *Engine) cancelJob(ctx context.Context, job *model.Job) {
	now := e.now()
	updated, err := e.store.CompareAndSwapStatus(ctx, job.ID, job.Status, model.JobStatusCancelled, func(j *model.Job) {
		j.CompletedAt = &now
		j.ProviderTask = nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrStatusConflict) {
			e.log.Error("failed to cancel job", zap.String("jobId", job.ID), zap.Error(err))
		}
		return
	}
	e.publish(updated, "cancelled by user")
	e.log.Info("job cancelled", zap.String("jobId", job.ID))
}

func (e *Engine) publish(job *model.Job, message string) {
	e.bus.Publish(job.ID, model.ProgressEvent{
		JobID:     job.ID,
		Progress:  job.Progress,
		Step:      job.CurrentStep,
		Message:   message,
		Status:    job.Status,
		Error:     job.Error,
		Timestamp: e.now(),
	})
}

func (e *Engine) creditCost(kind model.JobKind) int64 {
	if kind == model.JobKindTemplateAnalysis {
		return e.cfg.CreditCostAnalysis
	}
	return e.cfg.CreditCostGeneration
}

// swallowConflict treats a CAS conflict as "someone else owns this job
// now" and stops quietly; real store errors propagate.
func (e *Engine) swallowConflict(err error) (Outcome, error) {
	if errors.Is(err, store.ErrStatusConflict) {
		return Outcome{}, nil
	}
	return Outcome{}, err
}

func stepIndex(chain []Step, status model.JobStatus) int {
	for i, s := range chain {
		if s.Status() == status {
			return i
		}
	}
	return -1
}

// copyPayload carries step-made mutations onto the stored record inside
// a CAS patch.
func copyPayload(dst, src *model.Job) {
	dst.ProviderTask = src.ProviderTask
	dst.ProviderUsed = src.ProviderUsed
	dst.Result = src.Result
	dst.Scratch = src.Scratch
}
