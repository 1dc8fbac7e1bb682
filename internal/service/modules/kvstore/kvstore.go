// Package kvstore exposes a redis-backed key/value surface to other
// local processes. The start hook dials redis and parks the client in
// the module context; handlers pull it from there, the shutdown hook
// closes it.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"logic-server/internal/config"
	"logic-server/internal/service"
)

const ModuleID = "kvstore"

const opTimeout = 3 * time.Second

type clientKey struct{}

func New(cfg config.RedisConfig, logger *zap.Logger) (*service.Module, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := service.NewModule(ModuleID, "KV Store", "Shared key/value state backed by redis.")

	m.OnStart(func(ctx context.Context) error {
		if cfg.PoolSize <= 0 {
			cfg.PoolSize = 20
		}
		if cfg.MinIdleConns <= 0 {
			cfg.MinIdleConns = 2
		}
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  opTimeout,
			ReadTimeout:  opTimeout,
			WriteTimeout: opTimeout,
		})

		pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
		}

		logger.Info("kvstore connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
		m.SetContext(clientKey{}, client)
		return nil
	})

	m.OnShutdown(func(ctx context.Context) error {
		if c, ok := m.Context(clientKey{}); ok {
			return c.(*redis.Client).Close()
		}
		return nil
	})

	// Handlers call redis synchronously, so both register as blocking
	// and take a dispatcher slot while they run.
	err := m.API("kv_set", setHandler(m),
		service.Params(
			service.Field{Name: "key", Kind: service.KindString},
			service.Field{Name: "value", Kind: service.KindString},
		),
		service.Response(service.Field{Name: "stored", Kind: service.KindBool}),
		false,
	)
	if err != nil {
		return nil, err
	}

	err = m.API("kv_get", getHandler(m),
		service.Params(service.Field{Name: "key", Kind: service.KindString}),
		service.Response(
			service.Field{Name: "value", Kind: service.KindString},
			service.Field{Name: "found", Kind: service.KindBool},
		),
		false,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func client(m *service.Module) (*redis.Client, error) {
	c, ok := m.Context(clientKey{})
	if !ok {
		return nil, errors.New("kvstore not started")
	}
	return c.(*redis.Client), nil
}

func setHandler(m *service.Module) service.Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		c, err := client(m)
		if err != nil {
			return nil, err
		}
		key := service.StringField(params, "key")
		if err := c.Set(ctx, key, service.StringField(params, "value"), 0).Err(); err != nil {
			return nil, fmt.Errorf("redis set %s: %w", key, err)
		}
		return map[string]any{"stored": true}, nil
	}
}

func getHandler(m *service.Module) service.Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		c, err := client(m)
		if err != nil {
			return nil, err
		}
		key := service.StringField(params, "key")
		value, err := c.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return map[string]any{"value": "", "found": false}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
		return map[string]any{"value": value, "found": true}, nil
	}
}
