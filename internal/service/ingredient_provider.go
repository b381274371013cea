package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/cache"
	"github.com/stockfood/traceflow/internal/domain/entity"
	"github.com/stockfood/traceflow/internal/repository"
)

// IngredientProvider serves the active-ingredient directory through a
// read-through cache. Cache failures degrade to a plain query; matching
// must not depend on a cache backend being up.
type IngredientProvider struct {
	ingredients *repository.IngredientRepository
	cache       cache.IngredientCache
	ttl         time.Duration
	logger      *zap.Logger
}

// NewIngredientProvider creates an ingredient provider.
func NewIngredientProvider(
	ingredients *repository.IngredientRepository,
	c cache.IngredientCache,
	ttl time.Duration,
	logger *zap.Logger,
) *IngredientProvider {
	return &IngredientProvider{ingredients: ingredients, cache: c, ttl: ttl, logger: logger}
}

// Active returns the active ingredients in stable id order.
func (p *IngredientProvider) Active(ctx context.Context) ([]*entity.Ingredient, error) {
	if cached, ok, err := p.cache.Get(ctx, cache.ActiveIngredientsKey); err != nil {
		p.logger.Warn("Ingredient cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	ingredients, err := p.ingredients.ListActive()
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, cache.ActiveIngredientsKey, ingredients, p.ttl); err != nil {
		p.logger.Warn("Ingredient cache write failed", zap.Error(err))
	}
	return ingredients, nil
}

// Get returns one ingredient by id, bypassing the cache.
func (p *IngredientProvider) Get(id int64) (*entity.Ingredient, error) {
	return p.ingredients.GetByID(id)
}
