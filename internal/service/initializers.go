package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/internal/config"
	"github.com/xkilldash9x/navpilot/internal/session"
)

// InitializeSessionStore opens the configured session store. The pool is
// returned for postgres only and is owned by the caller.
func InitializeSessionStore(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (session.Store, *pgxpool.Pool, error) {
	switch cfg.Store {
	case "", "memory":
		logger.Warn("Using the in-memory session store; sessions are lost on exit.")
		return session.NewMemoryStore(), nil, nil

	case "redis":
		logger.Info("Initializing Redis session store.", zap.String("addr", cfg.Redis.Addr))
		store, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis session store: %w", err)
		}
		return store, nil, nil

	case "postgres":
		pool, err := newPostgresPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		store, err := session.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to initialize postgres session store: %w", err)
		}
		if cfg.Postgres.Migrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
			logger.Debug("Session schema applied.")
		}
		logger.Info("Initialized PostgreSQL session store.")
		return store, pool, nil

	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

func newPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is not configured (hint: check NAVPILOT_DATABASE_URL)")
	}
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return pool, nil
}
