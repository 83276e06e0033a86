package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/config"
	"github.com/pixelmuse/api/internal/model"
)

// VisionClient is an OpenAI-compatible vision and embedding client. Both
// the primary and the fallback vision provider speak this wire shape, so
// the same type is instantiated twice with different endpoints.
type VisionClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	name       string
	log        *zap.Logger
}

// NewVisionClient creates a vision/embedding client for the given endpoint.
func NewVisionClient(name string, cfg *config.VisionEndpoint, timeout time.Duration, log *zap.Logger) *VisionClient {
	return &VisionClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		name:       name,
		log:        log.Named(name),
	}
}

func (c *VisionClient) Name() string { return c.name }

const analyzePrompt = `Describe this image as a reusable design template. Respond with a single JSON object: {"description": "<one paragraph>", "tags": ["<tag>", ...]}. No other text.`

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Analyze asks the vision model to describe the image as a template.
func (c *VisionClient) Analyze(ctx context.Context, imageURL string) (*Analysis, error) {
	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: analyzePrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: imageURL}},
			},
		}},
		Temperature: 0.2,
		MaxTokens:   1024,
	}

	var resp chatCompletionResponse
	if err := c.post(ctx, "/chat/completions", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(c.name, model.ErrorClassPermanent, "no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	// Models occasionally wrap the JSON in a code fence.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var analysis Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &analysis); err != nil {
		return nil, NewError(c.name, model.ErrorClassPermanent, "invalid analysis response: "+err.Error())
	}
	if analysis.Description == "" {
		return nil, NewError(c.name, model.ErrorClassPermanent, "empty analysis description")
	}
	return &analysis, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text.
func (c *VisionClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embeddingResponse
	if err := c.post(ctx, "/embeddings", embeddingRequest{Model: c.embedModel, Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, NewError(c.name, model.ErrorClassPermanent, "no embedding in response")
	}
	return resp.Data[0].Embedding, nil
}

func (c *VisionClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("url", req.URL.String()), zap.Error(err))
		return NewError(c.name, model.ErrorClassTransient, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(c.name, model.ErrorClassTransient, "failed to read response: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(c.name, resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return NewError(c.name, model.ErrorClassPermanent, "failed to unmarshal response: "+err.Error())
	}

	return nil
}
