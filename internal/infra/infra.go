package infra

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cryptopay/cryptopay/internal/config"
)

// Resources are the external connections the API runs on. Either may be nil
// in development, where in-process substitutes are used.
type Resources struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects to the configured Postgres and Redis. Outside development
// both are required.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Resources, error) {
	res := &Resources{}

	if cfg.DatabaseURL != "" || !cfg.IsDev() {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AutoMigrate)
		if err != nil {
			return nil, err
		}
		res.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger")
	}

	if cfg.RedisURL != "" || !cfg.IsDev() {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			res.Close(logger)
			return nil, err
		}
		res.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, idempotency and login rate limiting disabled")
	}

	return res, nil
}

// Close releases every open connection.
func (r *Resources) Close(logger *slog.Logger) {
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			logger.Warn("close redis", slog.Any("error", err))
		}
	}
	if r.DB != nil {
		r.DB.Close()
	}
}
