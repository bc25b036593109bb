package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/fanfund/api"
	"github.com/warp/fanfund/cache"
	"github.com/warp/fanfund/config"
	"github.com/warp/fanfund/market"
	memstore "github.com/warp/fanfund/market/store"
	"github.com/warp/fanfund/store/postgres"
	"github.com/warp/fanfund/store/sqlite"
)

// appStore is what every command needs from a backend.
type appStore interface {
	api.SeedStore
	Ping(ctx context.Context) error
	Close() error
}

type memoryStore struct {
	*memstore.TxMemory
}

func (memoryStore) Close() error { return nil }

// openStore opens the configured backend. Network backends are retried with
// exponential backoff until connectTimeout.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (appStore, error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("using in-memory store: data is lost on exit")
		return memoryStore{memstore.NewTxMemory()}, nil

	case "sqlite":
		if cfg.Database.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, nil

	case "postgres":
		var s *postgres.Store
		err := retry(ctx, log, "postgres", func() error {
			var err error
			s, err = postgres.Open(cfg.Database.DSN)
			if err != nil {
				return err
			}
			if err := s.Ping(ctx); err != nil {
				_ = s.Close()
				return err
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// openCache connects the Redis unlock cache. The cache is optional: when
// Redis is not configured or unreachable the service runs on the ledger
// alone.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (market.UnlockCache, func()) {
	noop := func() {}
	if cfg.Redis.Addr == "" {
		return nil, noop
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	unlocks := cache.NewRedisUnlocks(client, cfg.Redis.Prefix, cfg.Redis.TTL)
	if err := retry(ctx, log, "redis", func() error { return unlocks.Ping(ctx) }); err != nil {
		log.Warn("redis unavailable, running without unlock cache",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err),
		)
		_ = client.Close()
		return nil, noop
	}
	return unlocks, func() { _ = client.Close() }
}

const connectTimeout = 30 * time.Second

func retry(ctx context.Context, log *zap.Logger, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = connectTimeout

	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		log.Warn("connection failed, retrying",
			zap.String("target", what),
			zap.Int("attempt", attempt),
			zap.Duration("next_retry_in", next),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}
