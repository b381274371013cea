package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

// RedisIngredientCache backs the ingredient cache with redis.
type RedisIngredientCache struct {
	client *redis.Client
}

// NewRedisIngredientCache connects a redis-backed ingredient cache.
func NewRedisIngredientCache(addr, password string, db int) *RedisIngredientCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisIngredientCache{client: client}
}

func (c *RedisIngredientCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisIngredientCache) Close() error {
	return c.client.Close()
}

func (c *RedisIngredientCache) Get(ctx context.Context, key string) ([]*entity.Ingredient, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ingredients []*entity.Ingredient
	if err := json.Unmarshal([]byte(val), &ingredients); err != nil {
		return nil, false, err
	}
	return ingredients, true, nil
}

func (c *RedisIngredientCache) Set(ctx context.Context, key string, value []*entity.Ingredient, ttl time.Duration) error {
	if len(value) == 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
