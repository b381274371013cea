// Package cache provides a read-through cache for the ingredient
// directory. The directory is re-read per request through this interface
// rather than held in process-lifetime shared state.
package cache

import (
	"context"
	"time"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

// IngredientCache stores the active-ingredient list between requests.
type IngredientCache interface {
	Get(ctx context.Context, key string) ([]*entity.Ingredient, bool, error)
	Set(ctx context.Context, key string, value []*entity.Ingredient, ttl time.Duration) error
}

// ActiveIngredientsKey is the cache key for the active-ingredient list.
const ActiveIngredientsKey = "ingredients:active"

// NoopIngredientCache is used when no cache backend is configured; every
// read falls through to the database.
type NoopIngredientCache struct{}

func (NoopIngredientCache) Get(_ context.Context, _ string) ([]*entity.Ingredient, bool, error) {
	return nil, false, nil
}

func (NoopIngredientCache) Set(_ context.Context, _ string, _ []*entity.Ingredient, _ time.Duration) error {
	return nil
}
