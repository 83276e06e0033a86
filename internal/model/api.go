package model

import (
	"encoding/json"
	"time"
)

// SubmitResponse is returned when a job is accepted.
type SubmitResponse struct {
	JobID     string    `json:"jobId"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusResponse is the read-path view of a job, served straight from
// the job store.
type StatusResponse struct {
	JobID        string     `json:"jobId"`
	Kind         JobKind    `json:"kind"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	CurrentStep  string     `json:"currentStep,omitempty"`
	Error        *JobError  `json:"error,omitempty"`
	RetryCount   int        `json:"retryCount"`
	ProviderUsed string     `json:"providerUsed,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// ResultResponse wraps a completed job's payload.
type ResultResponse struct {
	JobID  string          `json:"jobId"`
	Kind   JobKind         `json:"kind"`
	Result json.RawMessage `json:"result"`
}

// CancelResponse acknowledges a cancel request. Cancellation is
// cooperative: the job stops at its next checkpoint.
type CancelResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}
