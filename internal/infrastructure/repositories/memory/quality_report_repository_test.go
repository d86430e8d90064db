package memory

import (
	"context"
	"testing"
	"time"

	"telemed/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(id domain.SessionID, score int) *domain.QualityReport {
	constraints := domain.DefaultQualityPresets()[domain.LevelHigh]
	return &domain.QualityReport{
		SessionID: id,
		Assessment: domain.QualityAssessment{
			Level:   domain.QualityGood,
			Score:   score,
			HasData: true,
		},
		Adaptation: domain.AdaptationState{
			CurrentConstraints: &constraints,
			Level:              domain.LevelHigh,
			History: []domain.AdaptationEntry{
				{From: domain.LevelMax, To: domain.LevelHigh, Reason: "poor quality", Timestamp: time.Unix(100, 0)},
			},
		},
		UpdatedAt: time.Unix(200, 0),
	}
}

func TestMemoryQualityReportRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryQualityReportRepository()

	_, err := repo.GetBySession(ctx, "room-1")
	assert.ErrorIs(t, err, domain.ErrReportNotFound)

	require.NoError(t, repo.Save(ctx, sampleReport("room-2", 80)))
	require.NoError(t, repo.Save(ctx, sampleReport("room-1", 60)))

	got, err := repo.GetBySession(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 60, got.Assessment.Score)
	assert.Equal(t, domain.LevelHigh, got.Adaptation.Level)

	// Save overwrites.
	require.NoError(t, repo.Save(ctx, sampleReport("room-1", 75)))
	got, err = repo.GetBySession(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 75, got.Assessment.Score)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.SessionID("room-1"), list[0].SessionID)
	assert.Equal(t, domain.SessionID("room-2"), list[1].SessionID)

	require.NoError(t, repo.Delete(ctx, "room-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "room-1"), domain.ErrReportNotFound)
}

func TestMemoryQualityReportRepository_StoresCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryQualityReportRepository()

	report := sampleReport("room-1", 60)
	require.NoError(t, repo.Save(ctx, report))

	report.Assessment.Score = 1
	report.Adaptation.History[0].Reason = "mutated"
	report.Adaptation.CurrentConstraints.Width = 1

	got, err := repo.GetBySession(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 60, got.Assessment.Score)
	assert.Equal(t, "poor quality", got.Adaptation.History[0].Reason)
	assert.Equal(t, 960, got.Adaptation.CurrentConstraints.Width)
}
