package model

// WebSocket message types
type WSMessageType string

const (
	WSMessageTypeProgress WSMessageType = "progress"
	WSMessageTypeComplete WSMessageType = "complete"
	WSMessageTypeError    WSMessageType = "error"
	WSMessageTypePing     WSMessageType = "ping"
	WSMessageTypePong     WSMessageType = "pong"
)

// WSMessage is the generic envelope for client messages.
type WSMessage struct {
	Type WSMessageType `json:"type"`
}

// WSProgressMessage carries a progress event to subscribers.
type WSProgressMessage struct {
	Type        WSMessageType `json:"type"`
	JobID       string        `json:"jobId"`
	Progress    int           `json:"progress"`
	Status      JobStatus     `json:"status"`
	CurrentStep string        `json:"currentStep,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// WSCompleteMessage tells subscribers the job finished; the payload is
// fetched over HTTP from the result endpoint.
type WSCompleteMessage struct {
	Type     WSMessageType `json:"type"`
	JobID    string        `json:"jobId"`
	Progress int           `json:"progress"`
	Status   JobStatus     `json:"status"`
}

// WSErrorMessage carries a terminal failure to subscribers.
type WSErrorMessage struct {
	Type  WSMessageType `json:"type"`
	JobID string        `json:"jobId"`
	Error WSError       `json:"error"`
}

// WSError mirrors JobError on the wire.
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
