package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/pixelmuse/api/internal/model"
	"github.com/pixelmuse/api/internal/service"
	"github.com/pixelmuse/api/pkg/response"
)

// JobHandler is the thin HTTP face of the enqueue/status/cancel
// contract. Authn/authz live upstream; the owner is taken from the
// X-Owner-ID header the gateway sets.
type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

func ownerID(c *fiber.Ctx) string {
	return c.Get("X-Owner-ID")
}

// Generate handles POST /api/jobs/generate
func (h *JobHandler) Generate(c *fiber.Ctx) error {
	owner := ownerID(c)
	if owner == "" {
		return response.ValidationError(c, "X-Owner-ID header is required", nil)
	}

	var req model.GenerationInput
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), model.JobKindGeneration, owner, &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, result)
}

// Analyze handles POST /api/jobs/analyze
func (h *JobHandler) Analyze(c *fiber.Ctx) error {
	owner := ownerID(c)
	if owner == "" {
		return response.ValidationError(c, "X-Owner-ID header is required", nil)
	}

	var req model.AnalysisInput
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), model.JobKindTemplateAnalysis, owner, &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

// Result handles GET /api/jobs/:jobId/result
func (h *JobHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrNotCompleted) {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

// Cancel handles POST /api/jobs/:jobId/cancel
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrAlreadyFinished) {
			return response.Conflict(c, "Job already finished")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

func formatValidationErrors(err error) []string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, fe.Field()+" failed "+fe.Tag()+" validation")
	}
	return out
}
