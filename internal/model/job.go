package model

import (
	"encoding/json"
	"time"
)

// Job represents one generation or template-analysis request tracked
// end-to-end by the pipeline. It is mutated exclusively by the engine
// executing it; everyone else reads.
type Job struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Kind        JobKind         `json:"kind"`
	Status      JobStatus       `json:"status"`
	CurrentStep string          `json:"currentStep,omitempty"`
	Progress    int             `json:"progress"`
	Input       json.RawMessage `json:"-"`
	Result      json.RawMessage `json:"-"`
	// Scratch carries typed intermediate state between steps across
	// worker hand-offs (resolved template, partial analysis).
	Scratch      json.RawMessage `json:"-"`
	Error        *JobError       `json:"error,omitempty"`
	RetryCount   int             `json:"retryCount"`
	StepRetries  int             `json:"-"`
	ProviderUsed string          `json:"providerUsed,omitempty"`
	ProviderTask *ProviderTask   `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// JobError is the structured failure attached to a terminally failed job.
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// CreditCaused reports whether the failure should be presented as a
// credit problem ("top up") rather than a provider problem ("retry").
func (e *JobError) CreditCaused() bool {
	return e != nil && e.Code == CodeInsufficientCredits
}

// NewJobError builds a JobError.
func NewJobError(code, message string, retryable bool) *JobError {
	return &JobError{Code: code, Message: message, Retryable: retryable}
}

// ProviderTask tracks one outstanding call to an external provider. It is
// owned by the job for the duration of the submit/poll steps.
type ProviderTask struct {
	Provider     string     `json:"provider"`
	ExternalID   string     `json:"externalId"`
	SubmittedAt  time.Time  `json:"submittedAt"`
	PollAttempts int        `json:"pollAttempts"`
	LastStatus   TaskStatus `json:"lastStatus"`
}

// TaskStatus is the normalized status vocabulary for provider tasks.
type TaskStatus string

const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// storedJob is the persisted shape: the raw payloads hidden from API
// responses still need to round-trip through the store.
type storedJob struct {
	Job
	InputRaw     json.RawMessage `json:"input,omitempty"`
	ResultRaw    json.RawMessage `json:"result,omitempty"`
	ScratchRaw   json.RawMessage `json:"scratch,omitempty"`
	TaskRaw      *ProviderTask   `json:"providerTask,omitempty"`
	StepRetryRaw int             `json:"stepRetries"`
}

// MarshalStored serializes the job including its internal payloads.
func (j *Job) MarshalStored() ([]byte, error) {
	return json.Marshal(storedJob{
		Job:          *j,
		InputRaw:     j.Input,
		ResultRaw:    j.Result,
		ScratchRaw:   j.Scratch,
		TaskRaw:      j.ProviderTask,
		StepRetryRaw: j.StepRetries,
	})
}

// UnmarshalStored deserializes a job persisted with MarshalStored.
func UnmarshalStored(data []byte) (*Job, error) {
	var sj storedJob
	if err := json.Unmarshal(data, &sj); err != nil {
		return nil, err
	}
	job := sj.Job
	job.Input = sj.InputRaw
	job.Result = sj.ResultRaw
	job.Scratch = sj.ScratchRaw
	job.ProviderTask = sj.TaskRaw
	job.StepRetries = sj.StepRetryRaw
	return &job, nil
}

// Clone returns a deep-enough copy for single-writer mutation.
func (j *Job) Clone() *Job {
	cp := *j
	if j.ProviderTask != nil {
		task := *j.ProviderTask
		cp.ProviderTask = &task
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}
