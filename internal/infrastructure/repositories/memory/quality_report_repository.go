package memory

import (
	"context"
	"sort"
	"sync"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
)

type MemoryQualityReportRepository struct {
	reports map[domain.SessionID]*domain.QualityReport
	mu      sync.RWMutex
}

func NewMemoryQualityReportRepository() ports.QualityReportRepository {
	return &MemoryQualityReportRepository{
		reports: make(map[domain.SessionID]*domain.QualityReport),
	}
}

// Save stores a copy of the report, replacing any earlier one.
func (r *MemoryQualityReportRepository) Save(ctx context.Context, report *domain.QualityReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports[report.SessionID] = report.Clone()
	return nil
}

func (r *MemoryQualityReportRepository) GetBySession(ctx context.Context, id domain.SessionID) (*domain.QualityReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, exists := r.reports[id]
	if !exists {
		return nil, domain.ErrReportNotFound
	}
	return report.Clone(), nil
}

func (r *MemoryQualityReportRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reports[id]; !exists {
		return domain.ErrReportNotFound
	}
	delete(r.reports, id)
	return nil
}

// List returns all reports ordered by session id.
func (r *MemoryQualityReportRepository) List(ctx context.Context) ([]*domain.QualityReport, error) {
	r.mu.RLock()
	reports := make([]*domain.QualityReport, 0, len(r.reports))
	for _, report := range r.reports {
		reports = append(reports, report.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].SessionID < reports[j].SessionID
	})
	return reports, nil
}
