package template

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrNotFound is returned when the template does not exist.
var ErrNotFound = errors.New("template not found")

// Template is a reusable style reference produced by analysis jobs and
// consumed by generation jobs.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags,omitempty"`
	Embedding   []float64 `json:"embedding,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Catalog stores templates and matches prompts against them by embedding
// similarity. Match never fails on a weak match: below the threshold it
// returns the designated default template.
type Catalog interface {
	Put(ctx context.Context, tpl *Template) error
	Get(ctx context.Context, id string) (*Template, error)
	// Match returns the best template whose cosine similarity to the
	// query embedding is at or above threshold, or the default template
	// when nothing qualifies. The returned score is the winning
	// similarity (0 when the default was used as a fallback).
	Match(ctx context.Context, embedding []float64, threshold float64) (*Template, float64, error)
	Default(ctx context.Context) (*Template, error)
}

// cosine returns the cosine similarity of two vectors, 0 when either is
// degenerate or lengths differ.
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// bestMatch scans candidates and picks the highest-scoring one at or
// above threshold.
func bestMatch(candidates []*Template, embedding []float64, threshold float64) (*Template, float64) {
	var best *Template
	var bestScore float64
	for _, tpl := range candidates {
		score := cosine(embedding, tpl.Embedding)
		if score >= threshold && score > bestScore {
			best = tpl
			bestScore = score
		}
	}
	return best, bestScore
}
