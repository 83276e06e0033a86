package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pixelmuse/api/internal/model"
	"github.com/pixelmuse/api/internal/provider"
	"github.com/pixelmuse/api/internal/template"
)

// analysisScratch is the inter-step state of a template-analysis job.
type analysisScratch struct {
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Embedding   []float64 `json:"embedding,omitempty"`
	TemplateID  string    `json:"templateId,omitempty"`
}

// AnalysisChain builds the ordered step list for template-analysis jobs:
// download → analyze → embed → finalize. Analysis shares the engine,
// store, backoff and ledger machinery with generation; only the steps
// differ.
func AnalysisChain(providers *provider.Adapter, downloader *provider.Downloader, catalog template.Catalog) []Step {
	return []Step{
		&downloadStep{downloader: downloader},
		&analyzeStep{providers: providers},
		&embedStep{providers: providers, catalog: catalog},
		&finalizeAnalysisStep{},
	}
}

func decodeAnalysisInput(job *model.Job) (*model.AnalysisInput, *model.JobError) {
	var input model.AnalysisInput
	if err := json.Unmarshal(job.Input, &input); err != nil {
		return nil, model.NewJobError(model.CodeInvalidInput, "malformed analysis input: "+err.Error(), false)
	}
	if input.ImageURL == "" {
		return nil, model.NewJobError(model.CodeInvalidInput, "imageUrl is required", false)
	}
	return &input, nil
}

// downloadStep verifies the reference image is fetchable and actually an
// image before spending provider calls on it.
type downloadStep struct {
	downloader *provider.Downloader
}

func (s *downloadStep) Status() model.JobStatus { return model.JobStatusDownloading }
func (s *downloadStep) Target() int             { return 20 }

func (s *downloadStep) Run(ctx context.Context, job *model.Job) StepResult {
	input, jerr := decodeAnalysisInput(job)
	if jerr != nil {
		return Fail(jerr)
	}
	if _, _, err := s.downloader.Fetch(ctx, input.ImageURL); err != nil {
		return failure(err, model.CodeProviderError)
	}
	return Advance()
}

// analyzeStep asks a vision provider to describe the image. The adapter
// fails over to the fallback vision provider on a permanent primary
// error; if both reject, the job fails here.
type analyzeStep struct {
	providers *provider.Adapter
}

func (s *analyzeStep) Status() model.JobStatus { return model.JobStatusAnalyzing }
func (s *analyzeStep) Target() int             { return 60 }

func (s *analyzeStep) Run(ctx context.Context, job *model.Job) StepResult {
	input, jerr := decodeAnalysisInput(job)
	if jerr != nil {
		return Fail(jerr)
	}

	analysis, providerName, err := s.providers.Analyze(ctx, input.ImageURL)
	if err != nil {
		return failure(err, model.CodeProviderError)
	}

	job.ProviderUsed = providerName
	writeScratch(job, analysisScratch{
		Description: analysis.Description,
		Tags:        analysis.Tags,
		Provider:    providerName,
	})
	return Advance()
}

// embedStep embeds the description and stores the finished template in
// the catalog. The template ID is derived from the job ID so a retry
// after a partial run overwrites rather than duplicates.
type embedStep struct {
	providers *provider.Adapter
	catalog   template.Catalog
}

func (s *embedStep) Status() model.JobStatus { return model.JobStatusEmbedding }
func (s *embedStep) Target() int             { return 85 }

func (s *embedStep) Run(ctx context.Context, job *model.Job) StepResult {
	input, jerr := decodeAnalysisInput(job)
	if jerr != nil {
		return Fail(jerr)
	}
	var scratch analysisScratch
	readScratch(job, &scratch)
	if scratch.Description == "" {
		return Fail(model.NewJobError(model.CodeInternalError, "embedding without an analysis", false))
	}

	embedding, _, err := s.providers.Embed(ctx, scratch.Description)
	if err != nil {
		return failure(err, model.CodeProviderError)
	}

	templateID := "tpl_" + job.ID
	if err := s.catalog.Put(ctx, &template.Template{
		ID:          templateID,
		Name:        input.Name,
		Description: scratch.Description,
		Tags:        scratch.Tags,
		Embedding:   embedding,
	}); err != nil {
		return Retry(model.ErrorClassTransient,
			model.NewJobError(model.CodeInternalError, "storing template: "+err.Error(), true))
	}

	scratch.Embedding = embedding
	scratch.TemplateID = templateID
	writeScratch(job, scratch)
	return Advance()
}

// finalizeAnalysisStep assembles the terminal result payload.
type finalizeAnalysisStep struct{}

func (s *finalizeAnalysisStep) Status() model.JobStatus { return model.JobStatusFinalizing }
func (s *finalizeAnalysisStep) Target() int             { return 100 }

func (s *finalizeAnalysisStep) Run(_ context.Context, job *model.Job) StepResult {
	var scratch analysisScratch
	readScratch(job, &scratch)
	if scratch.TemplateID == "" {
		return Fail(model.NewJobError(model.CodeInternalError, "finalizing without a stored template", false))
	}

	payload, err := json.Marshal(model.AnalysisResult{
		TemplateID:  scratch.TemplateID,
		Description: scratch.Description,
		Tags:        scratch.Tags,
		Provider:    scratch.Provider,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return Fail(model.NewJobError(model.CodeInternalError, "encoding result: "+err.Error(), false))
	}
	job.Result = payload
	return Advance()
}
