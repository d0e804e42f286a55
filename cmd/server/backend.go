package main

import (
	"context"
	"fmt"

	"storefront/internal/config"
	"storefront/pkg/kv"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backend 持有选中的 store；redis 后端额外暴露 client 供限流与 outbox 使用。
type backend struct {
	store kv.Store
	rdb   *rd.Client
}

func (b backend) Close() {
	_ = b.store.Close()
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
}

func openBackend(ctx context.Context, cfg config.AppConfig, keys kv.Keys, log *zap.Logger) (backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return backend{store: kv.NewMemoryStore()}, nil
	case config.BackendFile:
		s, err := kv.OpenFileStore(cfg.DataFile, log)
		if err != nil {
			return backend{}, fmt.Errorf("open data file: %w", err)
		}
		return backend{store: s}, nil
	case config.BackendSQLite:
		s, err := kv.OpenSQLite(cfg.DBPath)
		if err != nil {
			return backend{}, fmt.Errorf("open sqlite: %w", err)
		}
		return backend{store: s}, nil
	case config.BackendRedis:
		rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return backend{}, fmt.Errorf("redis ping: %w", err)
		}
		s, err := kv.NewRedisStore(ctx, rdb, keys.Changes(), log)
		if err != nil {
			_ = rdb.Close()
			return backend{}, fmt.Errorf("open redis store: %w", err)
		}
		return backend{store: s, rdb: rdb}, nil
	default:
		return backend{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
