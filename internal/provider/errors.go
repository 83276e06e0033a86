package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pixelmuse/api/internal/model"
)

// Error is a classified provider failure. The class decides whether the
// engine retries, backs off longer, or fails the job.
type Error struct {
	Provider   string
	Class      model.ErrorClass
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// NewError builds a classified provider error.
func NewError(provider string, class model.ErrorClass, message string) *Error {
	return &Error{Provider: provider, Class: class, Message: message}
}

// classifyStatus maps an HTTP status to an error class: 429 and quota
// responses are rate-limited, other 4xx reject the request for good,
// everything 5xx is worth retrying.
func classifyStatus(status int) model.ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return model.ErrorClassRateLimited
	case status >= 400 && status < 500:
		return model.ErrorClassPermanent
	default:
		return model.ErrorClassTransient
	}
}

// httpError builds a classified error from a non-2xx provider response.
func httpError(provider string, status int, body []byte) *Error {
	return &Error{
		Provider:   provider,
		Class:      classifyStatus(status),
		StatusCode: status,
		Message:    fmt.Sprintf("provider error: %s", truncate(string(body), 300)),
	}
}

// ClassOf extracts the error class. Timeouts and cancellations are
// transient; unclassified errors default to transient so the engine's
// bounded retry budget decides, rather than failing on the first blip.
func ClassOf(err error) model.ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.ErrorClassTransient
	}
	return model.ErrorClassTransient
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
