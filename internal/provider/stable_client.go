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

// StableClient talks to the fallback image-generation provider. Same
// async submit/poll model as flux but a different wire vocabulary.
type StableClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *zap.Logger
}

const stableName = "stablegen"

// NewStableClient creates a client for the fallback generation provider.
func NewStableClient(cfg *config.ProviderEndpoint, timeout time.Duration, log *zap.Logger) *StableClient {
	return &StableClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		log:        log.Named(stableName),
	}
}

func (c *StableClient) Name() string { return stableName }

type stableSubmitRequest struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	StylePreset    string   `json:"style_preset,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	Samples        int      `json:"samples,omitempty"`
	InitImages     []string `json:"init_images,omitempty"`
}

type stableJobResponse struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
	Output []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Seed   int64  `json:"seed"`
	} `json:"output,omitempty"`
}

// Submit starts a generation job.
func (c *StableClient) Submit(ctx context.Context, req *GenerateRequest) (string, error) {
	body := stableSubmitRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		StylePreset:    req.Style,
		Width:          req.Width,
		Height:         req.Height,
		Samples:        req.NumImages,
		InitImages:     req.RefImageURLs,
	}
	var result stableJobResponse
	if err := c.post(ctx, "/v2/generation/jobs", body, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", NewError(stableName, model.ErrorClassPermanent, "submit response missing id")
	}
	return result.ID, nil
}

// Poll retrieves the current state of a generation job.
func (c *StableClient) Poll(ctx context.Context, externalID string) (*GenerateResult, error) {
	var result stableJobResponse
	if err := c.get(ctx, fmt.Sprintf("/v2/generation/jobs/%s", externalID), &result); err != nil {
		return nil, err
	}
	return c.normalize(&result), nil
}

// Enhance requests an upscale pass over a finished job.
func (c *StableClient) Enhance(ctx context.Context, externalID string, variant EnhanceVariant) (string, error) {
	body := map[string]string{"job_id": externalID, "mode": string(variant)}
	var result stableJobResponse
	if err := c.post(ctx, "/v2/generation/upscale", body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *StableClient) normalize(r *stableJobResponse) *GenerateResult {
	out := &GenerateResult{Reason: r.Detail}
	switch r.State {
	case "succeeded", "done":
		out.Status = model.TaskStatusDone
		for _, img := range r.Output {
			out.Images = append(out.Images, model.GeneratedImage{
				URL: img.URL, Width: img.Width, Height: img.Height, Seed: img.Seed,
			})
		}
	case "failed", "rejected":
		out.Status = model.TaskStatusFailed
	case "queued", "accepted":
		out.Status = model.TaskStatusQueued
	default:
		out.Status = model.TaskStatusRunning
	}
	return out
}

// post sends a POST request with JSON body
func (c *StableClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
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
func (c *StableClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

func (c *StableClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("url", req.URL.String()), zap.Error(err))
		return NewError(stableName, model.ErrorClassTransient, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(stableName, model.ErrorClassTransient, "failed to read response: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(stableName, resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return NewError(stableName, model.ErrorClassPermanent, "failed to unmarshal response: "+err.Error())
	}

	return nil
}
