package model

import "time"

// ProgressEvent is published on the progress bus after every engine
// checkpoint. Events for one job are monotonically ordered by Progress
// because the engine is the single writer.
type ProgressEvent struct {
	JobID     string    `json:"jobId"`
	Progress  int       `json:"progress"`
	Step      string    `json:"step"`
	Message   string    `json:"message,omitempty"`
	Status    JobStatus `json:"status"`
	Error     *JobError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
