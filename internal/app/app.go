// Package app wires configuration to the concrete repository and cache
// implementations shared by every binary.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Srijan10011/Business-Calc-sub000/internal/cache"
	"github.com/Srijan10011/Business-Calc-sub000/internal/config"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/service"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store"
	"github.com/Srijan10011/Business-Calc-sub000/internal/store/memory"
	pgstore "github.com/Srijan10011/Business-Calc-sub000/internal/store/postgres"
)

// Closers runs in order at shutdown.
type Closers []func() error

func (c Closers) Close(logger *slog.Logger) {
	for _, closeFn := range c {
		if err := closeFn(); err != nil {
			logger.Error("close error", logging.FieldError, err)
		}
	}
}

// OpenRepository refuses to fall back to memory when DATABASE_URL is set.
func OpenRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, Closers, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory repository")
		return memory.New(), nil, nil
	}
	if err := pgstore.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	logger.Info("repository ready", "backend", "postgres")
	return pg, Closers{pg.Close}, nil
}

func OpenMoneyFlowCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (cache.MoneyFlowCache, Closers) {
	if cfg.RedisAddr == "" {
		logger.Info("money flow cache disabled")
		return cache.NoopMoneyFlowCache{}, nil
	}
	redisCache := cache.NewRedisMoneyFlowCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using noop cache", logging.FieldError, err)
		_ = redisCache.Close()
		return cache.NoopMoneyFlowCache{}, nil
	}
	logger.Info("money flow cache ready", "backend", "redis")
	return redisCache, Closers{redisCache.Close}
}

// OpenService builds the ledger service over the configured backends.
func OpenService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*service.Service, Closers, error) {
	repo, closers, err := OpenRepository(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	flows, cacheClosers := OpenMoneyFlowCache(ctx, cfg, logger)
	closers = append(closers, cacheClosers...)

	svc := service.New(repo,
		service.WithLogger(logger),
		service.WithMoneyFlowCache(flows, cfg.MoneyFlowTTL()),
	)
	return svc, closers, nil
}
