package redis

import (
	"context"
	"fmt"
	"time"

	"barbershop-billing/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	connectAttempts = 5
	connectBackoff  = 3 * time.Second
)

// Module provides the client behind the invoice sequence, the billing run
// lock and the readiness probe.
var Module = fx.Module("redis",
	fx.Provide(New),
)

func New(lc fx.Lifecycle, c *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	if err := waitReady(rdb, c.Redis.Addr); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb, nil
}

func waitReady(rdb *redis.Client, addr string) error {
	var err error
	for i := 1; i <= connectAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			zap.L().Info("[Redis] connected", zap.String("addr", addr))
			return nil
		}
		zap.L().Warn("[Redis] not ready, retrying", zap.String("addr", addr), zap.Int("attempt", i), zap.Error(err))
		time.Sleep(connectBackoff)
	}
	return fmt.Errorf("redis %s unreachable after %d attempts: %w", addr, connectAttempts, err)
}
