package ports

import (
	"context"

	"telemed/internal/core/domain"
)

type QualityReportRepository interface {
	Save(ctx context.Context, report *domain.QualityReport) error
	GetBySession(ctx context.Context, id domain.SessionID) (*domain.QualityReport, error)
	Delete(ctx context.Context, id domain.SessionID) error
	List(ctx context.Context) ([]*domain.QualityReport, error)
}
