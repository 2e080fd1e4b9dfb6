package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pipelabs/tradegate/internal/config"
)

func NewRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisUsageRepo tracks per-client daily order count and traded volume.
// Keys roll over at UTC midnight and expire after 48h.
type RedisUsageRepo struct {
	client *redis.Client
	prefix string
}

func NewRedisUsageRepo(client *redis.Client) *RedisUsageRepo {
	return &RedisUsageRepo{client: client, prefix: "usage"}
}

func (r *RedisUsageRepo) GetDailyUsage(ctx context.Context, clientID string) (int, float64, error) {
	key := r.makeKey(clientID)
	fields, err := r.client.HMGet(ctx, key, "orders", "volume").Result()
	if err != nil {
		return 0, 0, err
	}
	orders := 0
	volume := 0.0
	if len(fields) == 2 {
		if s, ok := fields[0].(string); ok {
			fmt.Sscanf(s, "%d", &orders)
		}
		if s, ok := fields[1].(string); ok {
			fmt.Sscanf(s, "%f", &volume)
		}
	}
	return orders, volume, nil
}

func (r *RedisUsageRepo) AddDailyUsage(ctx context.Context, clientID string, orders int, amount float64) error {
	key := r.makeKey(clientID)
	pipe := r.client.TxPipeline()
	if orders != 0 {
		pipe.HIncrBy(ctx, key, "orders", int64(orders))
	}
	if amount != 0 {
		pipe.HIncrByFloat(ctx, key, "volume", amount)
	}
	pipe.Expire(ctx, key, 48*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisUsageRepo) makeKey(clientID string) string {
	date := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("%s:%s:%s", r.prefix, clientID, date)
}
