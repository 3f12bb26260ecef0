package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avelio/flightdesk/config"
	"github.com/avelio/flightdesk/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client     *redis.Client
	flightsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		flightsTTL: flightsTTL,
	}
}

func (c *RedisCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	data, err := c.client.Get(ctx, flightsKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var flights []domain.Flight
	if err := json.Unmarshal(data, &flights); err != nil {
		return nil, err
	}
	return flights, nil
}

func (c *RedisCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	payload, err := json.Marshal(flights)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightsKey(), payload, c.flightsTTL).Err()
}

// AcquireSeatLocks takes a best-effort soft lock on every seat in the batch
// before the database claim. If any seat is already locked, the ones taken
// so far are released and the whole acquisition reports false.
func (c *RedisCache) AcquireSeatLocks(ctx context.Context, seatIDs []int64, ttl time.Duration) (bool, error) {
	taken := make([]int64, 0, len(seatIDs))
	for _, id := range seatIDs {
		ok, err := c.client.SetNX(ctx, seatLockKey(id), "locked", ttl).Result()
		if err != nil {
			_ = c.ReleaseSeatLocks(ctx, taken)
			return false, err
		}
		if !ok {
			_ = c.ReleaseSeatLocks(ctx, taken)
			return false, nil
		}
		taken = append(taken, id)
	}
	return true, nil
}

func (c *RedisCache) ReleaseSeatLocks(ctx context.Context, seatIDs []int64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	keys := make([]string, len(seatIDs))
	for i, id := range seatIDs {
		keys[i] = seatLockKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

func flightsKey() string {
	return "cache:flights"
}

func seatLockKey(seatID int64) string {
	return fmt.Sprintf("lock:seat:%d", seatID)
}
