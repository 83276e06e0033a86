package model

import "time"

// GenerationInput is the payload for a generation job.
type GenerationInput struct {
	Prompt         string `json:"prompt" validate:"required,min=3,max=2000"`
	NegativePrompt string `json:"negativePrompt,omitempty" validate:"max=2000"`
	Style          string `json:"style,omitempty" validate:"omitempty,oneof=photo illustration anime poster logo"`
	TemplateID     string `json:"templateId,omitempty"`
	FaceRefURL     string `json:"faceRefUrl,omitempty" validate:"omitempty,url"`
	LogoRefURL     string `json:"logoRefUrl,omitempty" validate:"omitempty,url"`
	Width          int    `json:"width,omitempty" validate:"omitempty,min=256,max=2048"`
	Height         int    `json:"height,omitempty" validate:"omitempty,min=256,max=2048"`
	NumImages      int    `json:"numImages,omitempty" validate:"omitempty,min=1,max=4"`
}

// GeneratedImage is one output image from a provider.
type GeneratedImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   int64  `json:"seed,omitempty"`
}

// GenerationResult is the terminal payload of a completed generation job.
type GenerationResult struct {
	Images     []GeneratedImage `json:"images"`
	Provider   string           `json:"provider"`
	TemplateID string           `json:"templateId,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// AnalysisInput is the payload for a template-analysis job.
type AnalysisInput struct {
	ImageURL string `json:"imageUrl" validate:"required,url"`
	Name     string `json:"name" validate:"required,min=1,max=120"`
}

// AnalysisResult is the terminal payload of a completed analysis job.
type AnalysisResult struct {
	TemplateID  string    `json:"templateId"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags,omitempty"`
	Embedding   []float64 `json:"-"`
	Provider    string    `json:"provider"`
	CreatedAt   time.Time `json:"createdAt"`
}
