package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/model"
)

type stubGenerator struct {
	name      string
	submitErr error
	submitted int
	pollFn    func(ctx context.Context) (*GenerateResult, error)
}

func (g *stubGenerator) Name() string { return g.name }

func (g *stubGenerator) Submit(_ context.Context, _ *GenerateRequest) (string, error) {
	g.submitted++
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return "task-1", nil
}

func (g *stubGenerator) Poll(ctx context.Context, _ string) (*GenerateResult, error) {
	if g.pollFn != nil {
		return g.pollFn(ctx)
	}
	return &GenerateResult{Status: model.TaskStatusRunning}, nil
}

func (g *stubGenerator) Enhance(_ context.Context, _ string, _ EnhanceVariant) (string, error) {
	return "task-2", nil
}

type stubVision struct {
	name       string
	analyzeErr error
	analyzed   int
	embedErr   error
}

func (v *stubVision) Name() string { return v.name }

func (v *stubVision) Analyze(_ context.Context, _ string) (*Analysis, error) {
	v.analyzed++
	if v.analyzeErr != nil {
		return nil, v.analyzeErr
	}
	return &Analysis{Description: "a quiet harbor"}, nil
}

func (v *stubVision) Embed(_ context.Context, _ string) ([]float64, error) {
	if v.embedErr != nil {
		return nil, v.embedErr
	}
	return []float64{0.1, 0.2}, nil
}

func newTestAdapter(primary, fallback Generator, vision, visionFallback Vision, timeout time.Duration) *Adapter {
	return NewAdapter(primary, fallback, vision, visionFallback, timeout, zap.NewNop())
}

func TestSubmitUsesPrimary(t *testing.T) {
	primary := &stubGenerator{name: "flux"}
	fallback := &stubGenerator{name: "stable"}
	a := newTestAdapter(primary, fallback, nil, nil, time.Second)

	task, err := a.Submit(context.Background(), &GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "flux", task.Provider)
	assert.Equal(t, "task-1", task.ExternalID)
	assert.Equal(t, model.TaskStatusQueued, task.LastStatus)
	assert.Equal(t, 0, fallback.submitted)
}

func TestSubmitFailsOverOnPermanentOnly(t *testing.T) {
	primary := &stubGenerator{name: "flux", submitErr: NewError("flux", model.ErrorClassPermanent, "rejected")}
	fallback := &stubGenerator{name: "stable"}
	a := newTestAdapter(primary, fallback, nil, nil, time.Second)

	task, err := a.Submit(context.Background(), &GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "stable", task.Provider)
	assert.Equal(t, 1, primary.submitted)
	assert.Equal(t, 1, fallback.submitted)
}

func TestSubmitNoFailoverOnTransient(t *testing.T) {
	primary := &stubGenerator{name: "flux", submitErr: NewError("flux", model.ErrorClassTransient, "overloaded")}
	fallback := &stubGenerator{name: "stable"}
	a := newTestAdapter(primary, fallback, nil, nil, time.Second)

	_, err := a.Submit(context.Background(), &GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, model.ErrorClassTransient, ClassOf(err))
	assert.Equal(t, 0, fallback.submitted)
}

func TestSubmitBothPermanentFails(t *testing.T) {
	primary := &stubGenerator{name: "flux", submitErr: NewError("flux", model.ErrorClassPermanent, "rejected")}
	fallback := &stubGenerator{name: "stable", submitErr: NewError("stable", model.ErrorClassPermanent, "rejected too")}
	a := newTestAdapter(primary, fallback, nil, nil, time.Second)

	_, err := a.Submit(context.Background(), &GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, model.ErrorClassPermanent, ClassOf(err))
	assert.Equal(t, 1, primary.submitted)
	assert.Equal(t, 1, fallback.submitted)
}

func TestPollTimeoutClassifiedTransient(t *testing.T) {
	primary := &stubGenerator{name: "flux", pollFn: func(ctx context.Context) (*GenerateResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	a := newTestAdapter(primary, nil, nil, nil, 10*time.Millisecond)

	task := &model.ProviderTask{Provider: "flux", ExternalID: "task-1"}
	_, err := a.Poll(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, model.ErrorClassTransient, ClassOf(err))
}

func TestPollRoutesByTaskProvider(t *testing.T) {
	primary := &stubGenerator{name: "flux"}
	fallback := &stubGenerator{name: "stable", pollFn: func(context.Context) (*GenerateResult, error) {
		return &GenerateResult{Status: model.TaskStatusDone}, nil
	}}
	a := newTestAdapter(primary, fallback, nil, nil, time.Second)

	result, err := a.Poll(context.Background(), &model.ProviderTask{Provider: "stable", ExternalID: "task-9"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusDone, result.Status)
}

func TestPollUnknownProviderIsPermanent(t *testing.T) {
	a := newTestAdapter(&stubGenerator{name: "flux"}, nil, nil, nil, time.Second)

	_, err := a.Poll(context.Background(), &model.ProviderTask{Provider: "gone", ExternalID: "task-1"})
	require.Error(t, err)
	assert.Equal(t, model.ErrorClassPermanent, ClassOf(err))
}

func TestEnhanceRoutesByTaskProvider(t *testing.T) {
	primary := &stubGenerator{name: "flux"}
	a := newTestAdapter(primary, nil, nil, nil, time.Second)

	task, err := a.Enhance(context.Background(), &model.ProviderTask{Provider: "flux", ExternalID: "task-1"}, EnhanceUpscale2x)
	require.NoError(t, err)
	assert.Equal(t, "flux", task.Provider)
	assert.Equal(t, "task-2", task.ExternalID)
}

func TestAnalyzeFailsOverOnPermanent(t *testing.T) {
	primaryVision := &stubVision{name: "vision", analyzeErr: NewError("vision", model.ErrorClassPermanent, "unsupported image")}
	fallbackVision := &stubVision{name: "vision-b"}
	a := newTestAdapter(nil, nil, primaryVision, fallbackVision, time.Second)

	analysis, name, err := a.Analyze(context.Background(), "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "vision-b", name)
	assert.Equal(t, "a quiet harbor", analysis.Description)
	assert.Equal(t, 1, primaryVision.analyzed)
	assert.Equal(t, 1, fallbackVision.analyzed)
}

func TestAnalyzeNoFailoverOnRateLimited(t *testing.T) {
	primaryVision := &stubVision{name: "vision", analyzeErr: NewError("vision", model.ErrorClassRateLimited, "quota")}
	fallbackVision := &stubVision{name: "vision-b"}
	a := newTestAdapter(nil, nil, primaryVision, fallbackVision, time.Second)

	_, _, err := a.Analyze(context.Background(), "https://example.com/a.png")
	require.Error(t, err)
	assert.Equal(t, model.ErrorClassRateLimited, ClassOf(err))
	assert.Equal(t, 0, fallbackVision.analyzed)
}

func TestEmbedReturnsProviderName(t *testing.T) {
	a := newTestAdapter(nil, nil, &stubVision{name: "vision"}, nil, time.Second)

	embedding, name, err := a.Embed(context.Background(), "dusty library")
	require.NoError(t, err)
	assert.Equal(t, "vision", name)
	assert.Len(t, embedding, 2)
}
