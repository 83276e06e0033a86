package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pixelmuse/api/internal/config"
	"github.com/pixelmuse/api/internal/model"
	"github.com/pixelmuse/api/internal/provider"
	"github.com/pixelmuse/api/internal/template"
)

// genScratch is the inter-step state of a generation job.
type genScratch struct {
	TemplateID          string `json:"templateId,omitempty"`
	TemplateDescription string `json:"templateDescription,omitempty"`
}

// GenerationChain builds the ordered step list for generation jobs:
// validate → resolve_references → submit → poll → finalize.
func GenerationChain(providers *provider.Adapter, catalog template.Catalog, cfg config.PipelineConfig) []Step {
	return []Step{
		&validateStep{},
		&resolveReferencesStep{providers: providers, catalog: catalog, threshold: cfg.SimilarityThreshold},
		&submitStep{providers: providers},
		&pollStep{providers: providers},
		&finalizeGenerationStep{},
	}
}

func decodeGenerationInput(job *model.Job) (*model.GenerationInput, *model.JobError) {
	var input model.GenerationInput
	if err := json.Unmarshal(job.Input, &input); err != nil {
		return nil, model.NewJobError(model.CodeInvalidInput, "malformed generation input: "+err.Error(), false)
	}
	return &input, nil
}

func readScratch(job *model.Job, out interface{}) {
	if len(job.Scratch) > 0 {
		_ = json.Unmarshal(job.Scratch, out)
	}
}

func writeScratch(job *model.Job, in interface{}) {
	data, err := json.Marshal(in)
	if err == nil {
		job.Scratch = data
	}
}

// validateStep rejects structurally invalid input before any external
// call is made.
type validateStep struct{}

func (s *validateStep) Status() model.JobStatus { return model.JobStatusValidating }
func (s *validateStep) Target() int             { return 5 }

func (s *validateStep) Run(_ context.Context, job *model.Job) StepResult {
	input, jerr := decodeGenerationInput(job)
	if jerr != nil {
		return Fail(jerr)
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return Fail(model.NewJobError(model.CodeInvalidInput, "prompt is required", false))
	}
	if (input.Width == 0) != (input.Height == 0) {
		return Fail(model.NewJobError(model.CodeInvalidInput, "width and height must be set together", false))
	}
	return Advance()
}

// resolveReferencesStep picks the template for the job: an explicit
// template reference when given, otherwise style extraction: embed the
// prompt and match it against the catalog. A weak match falls back to
// the default template rather than failing the job.
type resolveReferencesStep struct {
	providers *provider.Adapter
	catalog   template.Catalog
	threshold float64
}

func (s *resolveReferencesStep) Status() model.JobStatus { return model.JobStatusResolving }
func (s *resolveReferencesStep) Target() int             { return 15 }

func (s *resolveReferencesStep) Run(ctx context.Context, job *model.Job) StepResult {
	input, jerr := decodeGenerationInput(job)
	if jerr != nil {
		return Fail(jerr)
	}

	var tpl *template.Template
	if input.TemplateID != "" {
		t, err := s.catalog.Get(ctx, input.TemplateID)
		switch {
		case err == template.ErrNotFound:
			def, derr := s.catalog.Default(ctx)
			if derr != nil {
				return Retry(model.ErrorClassTransient,
					model.NewJobError(model.CodeInternalError, "loading default template: "+derr.Error(), true))
			}
			tpl = def
		case err != nil:
			return Retry(model.ErrorClassTransient,
				model.NewJobError(model.CodeInternalError, "loading template: "+err.Error(), true))
		default:
			tpl = t
		}
	} else {
		query := input.Prompt
		if input.Style != "" {
			query += " " + input.Style
		}
		embedding, _, err := s.providers.Embed(ctx, query)
		if err != nil {
			return failure(err, model.CodeProviderError)
		}
		matched, _, err := s.catalog.Match(ctx, embedding, s.threshold)
		if err != nil {
			return Retry(model.ErrorClassTransient,
				model.NewJobError(model.CodeInternalError, "matching template: "+err.Error(), true))
		}
		tpl = matched
	}

	writeScratch(job, genScratch{TemplateID: tpl.ID, TemplateDescription: tpl.Description})
	return Advance()
}

// submitStep hands the request to the provider adapter, which owns
// primary→fallback failover. Transient errors surface here as Retry so
// the backoff policy owns the pacing.
type submitStep struct {
	providers *provider.Adapter
}

func (s *submitStep) Status() model.JobStatus { return model.JobStatusSubmitting }
func (s *submitStep) Target() int             { return 25 }

func (s *submitStep) Run(ctx context.Context, job *model.Job) StepResult {
	input, jerr := decodeGenerationInput(job)
	if jerr != nil {
		return Fail(jerr)
	}
	var scratch genScratch
	readScratch(job, &scratch)

	prompt := input.Prompt
	if scratch.TemplateDescription != "" {
		prompt += ". Style reference: " + scratch.TemplateDescription
	}
	var refs []string
	if input.FaceRefURL != "" {
		refs = append(refs, input.FaceRefURL)
	}
	if input.LogoRefURL != "" {
		refs = append(refs, input.LogoRefURL)
	}

	task, err := s.providers.Submit(ctx, &provider.GenerateRequest{
		Prompt:         prompt,
		NegativePrompt: input.NegativePrompt,
		Style:          input.Style,
		Width:          input.Width,
		Height:         input.Height,
		NumImages:      input.NumImages,
		RefImageURLs:   refs,
	})
	if err != nil {
		return failure(err, model.CodeProviderError)
	}

	job.ProviderTask = task
	job.ProviderUsed = task.Provider
	return Advance()
}

// pollStep checks the outstanding provider task. "Still running" is not
// an error: it suspends the job for a scheduled re-poll.
type pollStep struct {
	providers *provider.Adapter
}

func (s *pollStep) Status() model.JobStatus { return model.JobStatusPolling }
func (s *pollStep) Target() int             { return 90 }

func (s *pollStep) Run(ctx context.Context, job *model.Job) StepResult {
	if job.ProviderTask == nil {
		return Fail(model.NewJobError(model.CodeInternalError, "polling without an outstanding provider task", false))
	}

	result, err := s.providers.Poll(ctx, job.ProviderTask)
	if err != nil {
		return failure(err, model.CodeProviderError)
	}

	job.ProviderTask.LastStatus = result.Status
	switch result.Status {
	case model.TaskStatusDone:
		var scratch genScratch
		readScratch(job, &scratch)
		payload, merr := json.Marshal(model.GenerationResult{
			Images:     result.Images,
			Provider:   job.ProviderTask.Provider,
			TemplateID: scratch.TemplateID,
			CreatedAt:  time.Now(),
		})
		if merr != nil {
			return Fail(model.NewJobError(model.CodeInternalError, "encoding result: "+merr.Error(), false))
		}
		job.Result = payload
		return Advance()
	case model.TaskStatusFailed:
		reason := result.Reason
		if reason == "" {
			reason = "provider reported failure"
		}
		return Fail(model.NewJobError(model.CodeProviderError, reason, false))
	default:
		return Wait()
	}
}

// finalizeGenerationStep is the last checkpoint before the engine debits
// credits and completes the job.
type finalizeGenerationStep struct{}

func (s *finalizeGenerationStep) Status() model.JobStatus { return model.JobStatusFinalizing }
func (s *finalizeGenerationStep) Target() int             { return 100 }

func (s *finalizeGenerationStep) Run(_ context.Context, job *model.Job) StepResult {
	if len(job.Result) == 0 {
		return Fail(model.NewJobError(model.CodeInternalError, "finalizing without a result", false))
	}
	return Advance()
}
