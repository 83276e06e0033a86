package provider

import (
	"context"

	"github.com/pixelmuse/api/internal/model"
)

// GenerateRequest is the normalized submission shape handed to any
// image-generation provider.
type GenerateRequest struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Style          string   `json:"style,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	NumImages      int      `json:"num_images,omitempty"`
	RefImageURLs   []string `json:"ref_image_urls,omitempty"`
}

// GenerateResult is one poll response, normalized across providers.
type GenerateResult struct {
	Status model.TaskStatus
	Images []model.GeneratedImage
	Reason string
}

// EnhanceVariant selects the post-processing applied by Enhance.
type EnhanceVariant string

const (
	EnhanceUpscale2x EnhanceVariant = "upscale_2x"
	EnhanceUpscale4x EnhanceVariant = "upscale_4x"
	EnhanceFaceFix   EnhanceVariant = "face_fix"
)

// Generator is implemented by each concrete image-generation provider.
// Submit and Enhance return the provider's external task ID; Poll reports
// normalized task state.
type Generator interface {
	Name() string
	Submit(ctx context.Context, req *GenerateRequest) (string, error)
	Poll(ctx context.Context, externalID string) (*GenerateResult, error)
	Enhance(ctx context.Context, externalID string, variant EnhanceVariant) (string, error)
}

// Analysis is the normalized output of a vision provider.
type Analysis struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Vision is implemented by each concrete vision/embedding provider.
type Vision interface {
	Name() string
	Analyze(ctx context.Context, imageURL string) (*Analysis, error)
	Embed(ctx context.Context, text string) ([]float64, error)
}
