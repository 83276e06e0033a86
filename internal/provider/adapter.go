package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/model"
)

// Adapter presents one interface over the concrete providers. Submit and
// Analyze fail over from the primary to the fallback on a permanent
// primary error; transient and rate-limited errors are returned to the
// engine unchanged so the backoff policy owns retries.
type Adapter struct {
	primary        Generator
	fallback       Generator
	vision         Vision
	visionFallback Vision
	callTimeout    time.Duration
	log            *zap.Logger
}

// NewAdapter wires the provider set. fallback and visionFallback may be
// nil when no fallback is configured.
func NewAdapter(primary, fallback Generator, vision, visionFallback Vision, callTimeout time.Duration, log *zap.Logger) *Adapter {
	return &Adapter{
		primary:        primary,
		fallback:       fallback,
		vision:         vision,
		visionFallback: visionFallback,
		callTimeout:    callTimeout,
		log:            log.Named("provider"),
	}
}

// Submit starts a generation task, trying the fallback provider once if
// the primary rejects the request for good.
func (a *Adapter) Submit(ctx context.Context, req *GenerateRequest) (*model.ProviderTask, error) {
	externalID, err := a.submitTo(ctx, a.primary, req)
	if err != nil {
		if ClassOf(err) != model.ErrorClassPermanent || a.fallback == nil {
			return nil, err
		}
		a.log.Warn("primary submit rejected, trying fallback",
			zap.String("provider", a.primary.Name()), zap.Error(err))
		externalID, err = a.submitTo(ctx, a.fallback, req)
		if err != nil {
			return nil, err
		}
		return a.newTask(a.fallback.Name(), externalID), nil
	}
	return a.newTask(a.primary.Name(), externalID), nil
}

func (a *Adapter) submitTo(ctx context.Context, gen Generator, req *GenerateRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	start := time.Now()
	externalID, err := gen.Submit(callCtx, req)
	a.logCall("submit", gen.Name(), start, err)
	return externalID, wrapTimeout(gen.Name(), err)
}

// Poll checks the task on whichever provider owns it. A per-call timeout
// is enforced; hitting it classifies as transient.
func (a *Adapter) Poll(ctx context.Context, task *model.ProviderTask) (*GenerateResult, error) {
	gen, err := a.generatorFor(task.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	start := time.Now()
	result, err := gen.Poll(callCtx, task.ExternalID)
	a.logCall("poll", gen.Name(), start, err)
	if err != nil {
		return nil, wrapTimeout(gen.Name(), err)
	}
	return result, nil
}

// Enhance starts a post-processing pass on the provider owning the task.
func (a *Adapter) Enhance(ctx context.Context, task *model.ProviderTask, variant EnhanceVariant) (*model.ProviderTask, error) {
	gen, err := a.generatorFor(task.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	start := time.Now()
	externalID, err := gen.Enhance(callCtx, task.ExternalID, variant)
	a.logCall("enhance", gen.Name(), start, err)
	if err != nil {
		return nil, wrapTimeout(gen.Name(), err)
	}
	return a.newTask(gen.Name(), externalID), nil
}

// Analyze describes an image, failing over to the fallback vision
// provider on a permanent primary error.
func (a *Adapter) Analyze(ctx context.Context, imageURL string) (*Analysis, string, error) {
	analysis, err := a.analyzeWith(ctx, a.vision, imageURL)
	if err != nil {
		if ClassOf(err) != model.ErrorClassPermanent || a.visionFallback == nil {
			return nil, "", err
		}
		a.log.Warn("primary vision rejected, trying fallback",
			zap.String("provider", a.vision.Name()), zap.Error(err))
		analysis, err = a.analyzeWith(ctx, a.visionFallback, imageURL)
		if err != nil {
			return nil, "", err
		}
		return analysis, a.visionFallback.Name(), nil
	}
	return analysis, a.vision.Name(), nil
}

func (a *Adapter) analyzeWith(ctx context.Context, v Vision, imageURL string) (*Analysis, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	start := time.Now()
	analysis, err := v.Analyze(callCtx, imageURL)
	a.logCall("analyze", v.Name(), start, err)
	return analysis, wrapTimeout(v.Name(), err)
}

// Embed returns an embedding, using the fallback on a permanent error.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float64, string, error) {
	embedding, err := a.embedWith(ctx, a.vision, text)
	if err != nil {
		if ClassOf(err) != model.ErrorClassPermanent || a.visionFallback == nil {
			return nil, "", err
		}
		embedding, err = a.embedWith(ctx, a.visionFallback, text)
		if err != nil {
			return nil, "", err
		}
		return embedding, a.visionFallback.Name(), nil
	}
	return embedding, a.vision.Name(), nil
}

func (a *Adapter) embedWith(ctx context.Context, v Vision, text string) ([]float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	start := time.Now()
	embedding, err := v.Embed(callCtx, text)
	a.logCall("embed", v.Name(), start, err)
	return embedding, wrapTimeout(v.Name(), err)
}

func (a *Adapter) generatorFor(name string) (Generator, error) {
	switch {
	case a.primary != nil && a.primary.Name() == name:
		return a.primary, nil
	case a.fallback != nil && a.fallback.Name() == name:
		return a.fallback, nil
	default:
		return nil, NewError(name, model.ErrorClassPermanent, "unknown provider for task")
	}
}

func (a *Adapter) newTask(provider, externalID string) *model.ProviderTask {
	return &model.ProviderTask{
		Provider:    provider,
		ExternalID:  externalID,
		SubmittedAt: time.Now(),
		LastStatus:  model.TaskStatusQueued,
	}
}

func (a *Adapter) logCall(op, provider string, start time.Time, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("provider", provider),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		a.log.Warn("provider call failed", append(fields, zap.Error(err))...)
		return
	}
	a.log.Info("provider call", fields...)
}

// wrapTimeout converts a deadline hit into a classified transient error
// so the engine schedules a re-poll instead of bubbling a raw context
// error.
func wrapTimeout(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(provider, model.ErrorClassTransient, "call timed out")
	}
	return err
}
