package repositories

import (
	"context"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/pkg/cache"

	"github.com/benbjohnson/clock"
)

const defaultReportCacheSize = 1024

// CachedReportRepository keeps recently used reports in memory in front of a
// remote store. Ended sessions are read repeatedly by dashboards, so reads
// are served from the cache until the TTL runs out. List always goes to the
// store.
type CachedReportRepository struct {
	repo  ports.QualityReportRepository
	cache *cache.Cache[*domain.QualityReport]
}

var _ ports.QualityReportRepository = (*CachedReportRepository)(nil)

func NewCachedReportRepository(repo ports.QualityReportRepository, ttl time.Duration, maxItems int, clk clock.Clock) *CachedReportRepository {
	if maxItems <= 0 {
		maxItems = defaultReportCacheSize
	}
	return &CachedReportRepository{
		repo:  repo,
		cache: cache.New[*domain.QualityReport](ttl, maxItems, clk),
	}
}

func (r *CachedReportRepository) Save(ctx context.Context, report *domain.QualityReport) error {
	if err := r.repo.Save(ctx, report); err != nil {
		r.cache.Delete(string(report.SessionID))
		return err
	}
	r.cache.Set(string(report.SessionID), report.Clone())
	return nil
}

func (r *CachedReportRepository) GetBySession(ctx context.Context, id domain.SessionID) (*domain.QualityReport, error) {
	report, err := r.cache.GetOrLoad(ctx, string(id), func(ctx context.Context) (*domain.QualityReport, error) {
		return r.repo.GetBySession(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return report.Clone(), nil
}

func (r *CachedReportRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.cache.Delete(string(id))
	return r.repo.Delete(ctx, id)
}

func (r *CachedReportRepository) List(ctx context.Context) ([]*domain.QualityReport, error) {
	return r.repo.List(ctx)
}

// CacheStats exposes hit and miss counts.
func (r *CachedReportRepository) CacheStats() cache.Stats {
	return r.cache.Stats()
}
