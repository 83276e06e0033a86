package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/config"
	"github.com/pixelmuse/api/internal/model"
	"github.com/pixelmuse/api/internal/service"
	"github.com/pixelmuse/api/internal/store"
)

func newTestApp(t *testing.T) (*fiber.App, *store.MemoryStore) {
	t.Helper()
	js := store.NewMemoryStore(time.Hour)
	// The queue client is never dialed by the read and cancel paths
	// under test.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: "localhost:6379"})
	svc := service.NewJobService(js, asynqClient, config.PipelineConfig{JobDeadline: time.Minute, JobTTL: time.Hour}, zap.NewNop())
	h := NewJobHandler(svc, validator.New())

	app := fiber.New()
	jobs := app.Group("/api/jobs")
	jobs.Post("/generate", h.Generate)
	jobs.Get("/:jobId", h.Status)
	jobs.Get("/:jobId/result", h.Result)
	jobs.Post("/:jobId/cancel", h.Cancel)
	return app, js
}

func seedJob(t *testing.T, js *store.MemoryStore, status model.JobStatus) *model.Job {
	t.Helper()
	now := time.Now()
	job := &model.Job{
		ID:        "job-1",
		OwnerID:   "owner-1",
		Kind:      model.JobKindGeneration,
		Status:    status,
		Progress:  25,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, js.Create(context.Background(), job))
	return job
}

func TestStatusReturnsJob(t *testing.T) {
	app, js := newTestApp(t)
	seedJob(t, js, model.JobStatusPolling)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body model.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "job-1", body.JobID)
	assert.Equal(t, model.JobStatusPolling, body.Status)
	assert.Equal(t, 25, body.Progress)
}

func TestStatusUnknownJobIs404(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResultRequiresCompletion(t *testing.T) {
	app, js := newTestApp(t)
	seedJob(t, js, model.JobStatusPolling)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/result", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelFinishedJobIsConflict(t *testing.T) {
	app, js := newTestApp(t)
	seedJob(t, js, model.JobStatusCompleted)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/cancel", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelFlagsRunningJob(t *testing.T) {
	app, js := newTestApp(t)
	seedJob(t, js, model.JobStatusPolling)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/cancel", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancelled, err := js.IsCancelRequested(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestGenerateRequiresOwnerHeader(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/generate",
		strings.NewReader(`{"prompt":"a sunset"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateRejectsInvalidBody(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/generate",
		strings.NewReader(`{"prompt":"hi","width":99}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", "owner-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
