package redis

import (
	"context"
	"fmt"
	"time"

	"payouts-controlplane/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the redis client backing release code sequences.
var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	pingAttempts = 5
	pingBackoff  = 2 * time.Second
)

func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return waitReady(ctx, rdb)
		},
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}

// waitReady pings until redis answers or the start context expires.
func waitReady(ctx context.Context, rdb *redis.Client) error {
	log := zap.L().With(zap.String("addr", rdb.Options().Addr), zap.Int("db", rdb.Options().DB))

	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			log.Info("redis connected", zap.Int("attempt", attempt))
			return nil
		}
		log.Warn("redis not ready", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis ping: %w", ctx.Err())
		case <-time.After(pingBackoff):
		}
	}
	return fmt.Errorf("redis unreachable after %d attempts: %w", pingAttempts, err)
}
