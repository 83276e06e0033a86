package template

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const catalogKey = "templates"

// RedisCatalog keeps all templates in one Redis hash. Catalogs are small
// (hundreds of templates), so Match loads the hash and scores in-process.
type RedisCatalog struct {
	redis     *redis.Client
	defaultID string
}

// NewRedisCatalog creates a Redis-backed catalog. defaultID names the
// template returned when no match clears the threshold; it is created
// lazily if absent.
func NewRedisCatalog(redisClient *redis.Client, defaultID string) *RedisCatalog {
	return &RedisCatalog{redis: redisClient, defaultID: defaultID}
}

func (c *RedisCatalog) Put(ctx context.Context, tpl *Template) error {
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now()
	}
	data, err := json.Marshal(tpl)
	if err != nil {
		return err
	}
	return c.redis.HSet(ctx, catalogKey, tpl.ID, data).Err()
}

func (c *RedisCatalog) Get(ctx context.Context, id string) (*Template, error) {
	data, err := c.redis.HGet(ctx, catalogKey, id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (c *RedisCatalog) Match(ctx context.Context, embedding []float64, threshold float64) (*Template, float64, error) {
	all, err := c.redis.HGetAll(ctx, catalogKey).Result()
	if err != nil {
		return nil, 0, err
	}

	candidates := make([]*Template, 0, len(all))
	for _, raw := range all {
		var tpl Template
		if err := json.Unmarshal([]byte(raw), &tpl); err != nil {
			continue
		}
		candidates = append(candidates, &tpl)
	}

	if best, score := bestMatch(candidates, embedding, threshold); best != nil {
		return best, score, nil
	}
	def, err := c.Default(ctx)
	if err != nil {
		return nil, 0, err
	}
	return def, 0, nil
}

func (c *RedisCatalog) Default(ctx context.Context) (*Template, error) {
	tpl, err := c.Get(ctx, c.defaultID)
	if err == ErrNotFound {
		// Seed a neutral default so generation never fails on an empty
		// catalog.
		tpl = &Template{
			ID:          c.defaultID,
			Name:        "Default",
			Description: "Clean, neutral composition with balanced lighting",
			CreatedAt:   time.Now(),
		}
		if err := c.Put(ctx, tpl); err != nil {
			return nil, fmt.Errorf("seeding default template: %w", err)
		}
		return tpl, nil
	}
	return tpl, err
}
