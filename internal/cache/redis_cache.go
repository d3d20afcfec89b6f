package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
)

type RedisMoneyFlowCache struct {
	client *redis.Client
}

func NewRedisMoneyFlowCache(addr string, password string, db int) *RedisMoneyFlowCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisMoneyFlowCache{client: client}
}

func (c *RedisMoneyFlowCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisMoneyFlowCache) Close() error {
	return c.client.Close()
}

func (c *RedisMoneyFlowCache) Generation(ctx context.Context, businessID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(businessID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisMoneyFlowCache) Get(ctx context.Context, businessID string, month string, generation int64) (*domain.MoneyFlow, bool, error) {
	val, err := c.client.Get(ctx, moneyFlowKey(businessID, month, generation)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var flow domain.MoneyFlow
	if err := json.Unmarshal([]byte(val), &flow); err != nil {
		return nil, false, err
	}
	return &flow, true, nil
}

func (c *RedisMoneyFlowCache) Set(ctx context.Context, value *domain.MoneyFlow, generation int64, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, moneyFlowKey(value.BusinessID, value.Month, generation), payload, ttl).Err()
}

// Invalidate bumps the business generation. Entries of older generations are
// unreachable from then on and expire with their TTL.
func (c *RedisMoneyFlowCache) Invalidate(ctx context.Context, businessID string) error {
	return c.client.Incr(ctx, generationKey(businessID)).Err()
}
