package repositories

import (
	"context"
	"testing"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/internal/infrastructure/repositories/memory"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo counts reads that reach the store.
type countingRepo struct {
	ports.QualityReportRepository
	reads int
}

func (c *countingRepo) GetBySession(ctx context.Context, id domain.SessionID) (*domain.QualityReport, error) {
	c.reads++
	return c.QualityReportRepository.GetBySession(ctx, id)
}

func TestCachedReportRepository(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	store := &countingRepo{QualityReportRepository: memory.NewMemoryQualityReportRepository()}
	repo := NewCachedReportRepository(store, time.Minute, 0, clk)

	require.NoError(t, store.QualityReportRepository.Save(ctx, &domain.QualityReport{
		SessionID:  "room-1",
		Assessment: domain.QualityAssessment{Score: 80},
	}))

	for i := 0; i < 3; i++ {
		report, err := repo.GetBySession(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, 80, report.Assessment.Score)
		report.Assessment.Score = 0
	}
	assert.Equal(t, 1, store.reads)

	clk.Add(time.Minute)
	_, err := repo.GetBySession(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.reads)

	// Saves refresh the cache without a read.
	require.NoError(t, repo.Save(ctx, &domain.QualityReport{
		SessionID:  "room-1",
		Assessment: domain.QualityAssessment{Score: 55},
	}))
	report, err := repo.GetBySession(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 55, report.Assessment.Score)
	assert.Equal(t, 2, store.reads)

	require.NoError(t, repo.Delete(ctx, "room-1"))
	_, err = repo.GetBySession(ctx, "room-1")
	assert.ErrorIs(t, err, domain.ErrReportNotFound)

	// Misses are not cached.
	_, err = repo.GetBySession(ctx, "room-1")
	assert.ErrorIs(t, err, domain.ErrReportNotFound)
	assert.Equal(t, 4, store.reads)

	reports, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)
}
