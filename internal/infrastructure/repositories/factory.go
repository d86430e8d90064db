package repositories

import (
	"context"
	"fmt"
	"time"

	"telemed/internal/core/ports"
	"telemed/internal/infrastructure/reliability"
	"telemed/internal/infrastructure/repositories/memory"
	"telemed/internal/infrastructure/repositories/postgres"
	redisrepo "telemed/internal/infrastructure/repositories/redis"
	"telemed/pkg/circuitbreaker"
	"telemed/pkg/config"
	"telemed/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// RepositoryFactory opens the configured report store. When the configured
// backend cannot be reached it falls back to memory so the service still
// starts; reports are then lost on restart.
type RepositoryFactory struct {
	backend     string
	redisClient *redis.Client
	postgres    *postgres.QualityReportRepository
	reports     ports.QualityReportRepository
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects the backends named in cfg. Redis is
// connected whenever it is enabled because the event bus also needs it.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, retryCfg retry.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	f := &RepositoryFactory{
		backend: cfg.Storage.Backend,
		logger:  logger,
	}

	if cfg.Redis.Enabled {
		client, err := retry.DoWithResult(ctx, retryCfg, func(ctx context.Context) (*redis.Client, error) {
			return redisrepo.NewRedisClient(ctx, redisrepo.ClientOptions{
				Address:   cfg.Redis.Address,
				Password:  cfg.Redis.Password,
				DB:        cfg.Redis.DB,
				PoolSize:  cfg.Redis.PoolSize,
				KeyPrefix: cfg.Redis.KeyPrefix,
			}, logger)
		}, func(err error, delay time.Duration) {
			logger.Warnw("redis not ready, retrying", "error", err, "delay", delay)
		})
		if err != nil {
			logger.Warnw("failed to connect to Redis", "error", err)
		} else {
			f.redisClient = client
		}
	}

	switch cfg.Storage.Backend {
	case BackendRedis:
		if f.redisClient != nil {
			f.reports = redisrepo.NewRedisQualityReportRepository(f.redisClient, cfg.Redis.KeyPrefix, cfg.Redis.ReportTTL)
		}
	case BackendPostgres:
		db, err := postgres.Connect(ctx, postgres.Options{
			DSN:             cfg.Postgres.DSN,
			MaxConnections:  cfg.Postgres.MaxConnections,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
		}, retryCfg, logger)
		if err != nil {
			logger.Warnw("failed to connect to postgres", "error", err)
			break
		}
		repo := postgres.NewQualityReportRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		f.postgres = repo
		f.reports = repo
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if f.reports == nil {
		if f.backend != BackendMemory {
			logger.Warnw("falling back to memory report storage", "configured", f.backend)
		}
		f.backend = BackendMemory
		f.reports = memory.NewMemoryQualityReportRepository()
	} else {
		// Remote stores get a breaker, write retries and a read cache.
		f.reports = reliability.NewReportRepositoryWrapper(f.reports, "report-store-"+f.backend,
			retryCfg, circuitbreaker.DefaultConfig(), nil, logger)
		if cfg.Storage.CacheTTL > 0 {
			f.reports = NewCachedReportRepository(f.reports, cfg.Storage.CacheTTL, cfg.Storage.CacheSize, nil)
		}
	}
	logger.Infow("report storage ready", "backend", f.backend)

	return f, nil
}

// Backend is the backend actually in use after any fallback.
func (f *RepositoryFactory) Backend() string {
	return f.backend
}

func (f *RepositoryFactory) QualityReportRepository() ports.QualityReportRepository {
	return f.reports
}

// RedisClient returns the shared client, or nil when Redis is not in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// HealthCheck pings every connected backend.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if f.postgres != nil {
		if err := f.postgres.HealthCheck(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

func (f *RepositoryFactory) Close() error {
	var firstErr error
	if f.postgres != nil {
		firstErr = f.postgres.Close()
	}
	if err := redisrepo.CloseRedisClient(f.redisClient); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
