package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/carttracker/internal/config"
)

// Limiter decides whether a client may report another event.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	Close() error
}

// Redis is a fixed one-second window counter per key.
type Redis struct {
	client *redis.Client
	limit  int64
}

func NewRedis(cfg config.RedisConfig, rl config.RateLimitConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Redis{
		client: rdb,
		limit:  int64(rl.RequestsPerSecond),
	}
}

func (r *Redis) Allow(ctx context.Context, key string) bool {
	k := "ratelimit:cart:" + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		log.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
		return true
	}

	// First hit opens the window
	if count == 1 {
		r.client.Expire(ctx, k, time.Second)
	}

	return count <= r.limit
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Unlimited allows every request. Used when no Redis address is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) bool { return true }

func (Unlimited) Close() error { return nil }

// New returns a Redis limiter when an address is configured, Unlimited
// otherwise.
func New(cfg *config.Config) Limiter {
	if cfg.Redis.Addr == "" {
		return Unlimited{}
	}
	return NewRedis(cfg.Redis, cfg.RateLimit)
}
