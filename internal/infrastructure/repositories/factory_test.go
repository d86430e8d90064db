package repositories

import (
	"context"
	"testing"
	"time"

	"telemed/internal/core/domain"
	"telemed/pkg/config"
	"telemed/pkg/retry"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func noRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 0
	return cfg
}

func TestRepositoryFactory_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()

	f, err := NewRepositoryFactory(ctx, cfg, noRetry(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, BackendMemory, f.Backend())
	assert.Nil(t, f.RedisClient())
	assert.NoError(t, f.HealthCheck(ctx))

	repo := f.QualityReportRepository()
	require.NoError(t, repo.Save(ctx, &domain.QualityReport{SessionID: "room-1"}))
	_, err = repo.GetBySession(ctx, "room-1")
	assert.NoError(t, err)
}

func TestRepositoryFactory_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Storage.Backend = BackendRedis
	cfg.Redis.Enabled = true
	cfg.Redis.Address = mr.Addr()

	f, err := NewRepositoryFactory(ctx, cfg, noRetry(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, BackendRedis, f.Backend())
	require.NotNil(t, f.RedisClient())
	assert.NoError(t, f.HealthCheck(ctx))

	require.NoError(t, f.QualityReportRepository().Save(ctx, &domain.QualityReport{
		SessionID: "room-1",
		UpdatedAt: time.Now(),
	}))
	assert.True(t, mr.Exists(cfg.Redis.KeyPrefix+"report:room-1"))

	_, cached := f.QualityReportRepository().(*CachedReportRepository)
	assert.True(t, cached)
}

func TestRepositoryFactory_FallsBackWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.DefaultConfig()
	cfg.Storage.Backend = BackendRedis
	cfg.Redis.Enabled = true
	cfg.Redis.Address = addr

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f, err := NewRepositoryFactory(ctx, cfg, noRetry(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, BackendMemory, f.Backend())
	assert.Nil(t, f.RedisClient())
}

func TestRepositoryFactory_UnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "sqlite"

	_, err := NewRepositoryFactory(context.Background(), cfg, noRetry(), zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}
