package template

import (
	"context"
	"sync"
	"time"
)

// MemoryCatalog is the in-process Catalog used by tests and Redis-less
// development.
type MemoryCatalog struct {
	mu        sync.RWMutex
	templates map[string]*Template
	defaultID string
}

// NewMemoryCatalog creates an in-memory catalog.
func NewMemoryCatalog(defaultID string) *MemoryCatalog {
	return &MemoryCatalog{
		templates: make(map[string]*Template),
		defaultID: defaultID,
	}
}

func (c *MemoryCatalog) Put(_ context.Context, tpl *Template) error {
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now()
	}
	cp := *tpl
	c.mu.Lock()
	c.templates[tpl.ID] = &cp
	c.mu.Unlock()
	return nil
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (*Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tpl, ok := c.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tpl
	return &cp, nil
}

func (c *MemoryCatalog) Match(ctx context.Context, embedding []float64, threshold float64) (*Template, float64, error) {
	c.mu.RLock()
	candidates := make([]*Template, 0, len(c.templates))
	for _, tpl := range c.templates {
		candidates = append(candidates, tpl)
	}
	c.mu.RUnlock()

	if best, score := bestMatch(candidates, embedding, threshold); best != nil {
		cp := *best
		return &cp, score, nil
	}
	def, err := c.Default(ctx)
	if err != nil {
		return nil, 0, err
	}
	return def, 0, nil
}

func (c *MemoryCatalog) Default(ctx context.Context) (*Template, error) {
	tpl, err := c.Get(ctx, c.defaultID)
	if err == ErrNotFound {
		tpl = &Template{
			ID:          c.defaultID,
			Name:        "Default",
			Description: "Clean, neutral composition with balanced lighting",
		}
		if err := c.Put(ctx, tpl); err != nil {
			return nil, err
		}
		return tpl, nil
	}
	return tpl, err
}
