package pipeline

import (
	"context"

	"github.com/pixelmuse/api/internal/model"
	"github.com/pixelmuse/api/internal/provider"
)

// Step is one unit of pipeline work. A job's status while a step runs is
// the step's own status, so the engine can resume a suspended job at the
// right step by looking at the stored status alone.
type Step interface {
	// Status names the step; it is the job status while the step runs.
	Status() model.JobStatus
	// Target is the progress value reached when the step completes.
	Target() int
	// Run executes the step against the loaded job. Steps mutate the
	// job's payload fields (ProviderTask, Scratch, Result) in place;
	// the engine persists those mutations at the next checkpoint. Run
	// never returns a raw error; every failure is expressed as a
	// StepResult.
	Run(ctx context.Context, job *model.Job) StepResult
}

type resultKind int

const (
	resultAdvance resultKind = iota
	resultWait
	resultRetry
	resultFail
)

// StepResult is the tagged outcome of one step execution.
type StepResult struct {
	kind  resultKind
	class model.ErrorClass
	err   *model.JobError
}

// Advance moves the job to the next step.
func Advance() StepResult {
	return StepResult{kind: resultAdvance}
}

// Wait re-enters the same step after a poll delay without consuming the
// retry budget (provider still working, nothing went wrong).
func Wait() StepResult {
	return StepResult{kind: resultWait}
}

// Retry re-enters the same step after a backoff delay, consuming one
// attempt from the step's retry budget.
func Retry(class model.ErrorClass, err *model.JobError) StepResult {
	return StepResult{kind: resultRetry, class: class, err: err}
}

// Fail terminates the job.
func Fail(err *model.JobError) StepResult {
	return StepResult{kind: resultFail, err: err}
}

// failure converts a classified provider error into the matching step
// result: permanent errors fail the job, everything else retries.
func failure(err error, code string) StepResult {
	class := provider.ClassOf(err)
	jerr := model.NewJobError(code, err.Error(), class != model.ErrorClassPermanent)
	if class == model.ErrorClassPermanent {
		return Fail(jerr)
	}
	return Retry(class, jerr)
}
