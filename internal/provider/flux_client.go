package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/config"
	"github.com/pixelmuse/api/internal/model"
)

// FluxClient talks to the primary image-generation provider. The API is
// asynchronous: a submit returns a task ID which is then polled.
type FluxClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *zap.Logger
}

const fluxName = "flux"

// NewFluxClient creates a client for the primary generation provider.
func NewFluxClient(cfg *config.ProviderEndpoint, timeout time.Duration, log *zap.Logger) *FluxClient {
	return &FluxClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		log:        log.Named(fluxName),
	}
}

func (c *FluxClient) Name() string { return fluxName }

type fluxSubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type fluxPollResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Images []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Seed   int64  `json:"seed"`
	} `json:"images,omitempty"`
}

// Submit starts a generation task.
func (c *FluxClient) Submit(ctx context.Context, req *GenerateRequest) (string, error) {
	var result fluxSubmitResponse
	if err := c.post(ctx, "/v1/images/generations", req, &result); err != nil {
		return "", err
	}
	if result.TaskID == "" {
		return "", NewError(fluxName, model.ErrorClassPermanent, "submit response missing task_id")
	}
	return result.TaskID, nil
}

// Poll retrieves the current state of a generation task.
func (c *FluxClient) Poll(ctx context.Context, externalID string) (*GenerateResult, error) {
	var result fluxPollResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/tasks/%s", externalID), &result); err != nil {
		return nil, err
	}
	return c.normalize(&result), nil
}

// Enhance requests a post-processing pass over a finished task.
func (c *FluxClient) Enhance(ctx context.Context, externalID string, variant EnhanceVariant) (string, error) {
	body := map[string]string{"task_id": externalID, "variant": string(variant)}
	var result fluxSubmitResponse
	if err := c.post(ctx, "/v1/images/enhance", body, &result); err != nil {
		return "", err
	}
	return result.TaskID, nil
}

func (c *FluxClient) normalize(r *fluxPollResponse) *GenerateResult {
	out := &GenerateResult{Reason: r.Error}
	switch r.Status {
	case "completed", "success":
		out.Status = model.TaskStatusDone
		for _, img := range r.Images {
			out.Images = append(out.Images, model.GeneratedImage{
				URL: img.URL, Width: img.Width, Height: img.Height, Seed: img.Seed,
			})
		}
	case "failed", "error", "moderated":
		out.Status = model.TaskStatusFailed
	case "queued", "pending":
		out.Status = model.TaskStatusQueued
	default:
		out.Status = model.TaskStatusRunning
	}
	return out
}

// post sends a POST request with JSON body
func (c *FluxClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *FluxClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

func (c *FluxClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("url", req.URL.String()), zap.Error(err))
		return NewError(fluxName, model.ErrorClassTransient, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(fluxName, model.ErrorClassTransient, "failed to read response: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(fluxName, resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return NewError(fluxName, model.ErrorClassPermanent, "failed to unmarshal response: "+err.Error())
	}

	return nil
}
