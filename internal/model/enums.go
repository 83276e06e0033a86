package model

// Job kinds
type JobKind string

const (
	JobKindGeneration       JobKind = "generation"
	JobKindTemplateAnalysis JobKind = "template_analysis"
)

var ValidJobKinds = []JobKind{JobKindGeneration, JobKindTemplateAnalysis}

// JobStatus doubles as the pipeline state: while a job is being worked on,
// its status is the name of the step currently executing.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"

	// Generation steps
	JobStatusValidating JobStatus = "validating"
	JobStatusResolving  JobStatus = "resolving_references"
	JobStatusSubmitting JobStatus = "submitting"
	JobStatusPolling    JobStatus = "polling"

	// Template-analysis steps
	JobStatusDownloading JobStatus = "downloading"
	JobStatusAnalyzing   JobStatus = "analyzing"
	JobStatusEmbedding   JobStatus = "embedding"

	// Shared tail
	JobStatusFinalizing JobStatus = "finalizing"

	// Terminal states
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is one of the three terminal states.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ErrorClass drives the retry policy.
type ErrorClass string

const (
	ErrorClassTransient   ErrorClass = "transient"
	ErrorClassRateLimited ErrorClass = "rate_limited"
	ErrorClassPermanent   ErrorClass = "permanent"
)

// Error codes surfaced on failed jobs. CodeInsufficientCredits marks a
// credit-caused failure; everything else is provider- or input-caused.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeProviderError       = "PROVIDER_ERROR"
	CodeProviderTimeout     = "PROVIDER_TIMEOUT"
	CodeRetriesExhausted    = "RETRIES_EXHAUSTED"
	CodeDeadlineExceeded    = "DEADLINE_EXCEEDED"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeLedgerError         = "LEDGER_ERROR"
	CodeInternalError       = "INTERNAL_ERROR"
)
