package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/internal/infrastructure/repositories/memory"
	"telemed/pkg/circuitbreaker"
	"telemed/pkg/retry"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// flakyRepo fails the first failures calls of every write.
type flakyRepo struct {
	ports.QualityReportRepository
	failures int
	calls    int
	err      error
}

func (f *flakyRepo) Save(ctx context.Context, report *domain.QualityReport) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.QualityReportRepository.Save(ctx, report)
}

func (f *flakyRepo) List(ctx context.Context) ([]*domain.QualityReport, error) {
	f.calls++
	if f.err != nil && f.calls <= f.failures {
		return nil, f.err
	}
	return f.QualityReportRepository.List(ctx)
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func newWrapper(t *testing.T, repo ports.QualityReportRepository, attempts int, clk clock.Clock) *ReportRepositoryWrapper {
	t.Helper()
	return NewReportRepositoryWrapper(repo, "reports", fastRetry(attempts), circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	}, clk, zaptest.NewLogger(t).Sugar())
}

func TestReportRepositoryWrapper_RetriesSave(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{
		QualityReportRepository: memory.NewMemoryQualityReportRepository(),
		failures:                2,
		err:                     errors.New("connection reset"),
	}
	w := newWrapper(t, repo, 3, clock.NewMock())

	require.NoError(t, w.Save(ctx, &domain.QualityReport{SessionID: "room-1"}))
	assert.Equal(t, 3, repo.calls)

	report, err := w.GetBySession(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("room-1"), report.SessionID)
	assert.Equal(t, circuitbreaker.StateClosed, w.CircuitBreakerStats().State)
}

func TestReportRepositoryWrapper_NotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	w := newWrapper(t, memory.NewMemoryQualityReportRepository(), 3, clock.NewMock())

	for i := 0; i < 5; i++ {
		_, err := w.GetBySession(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrReportNotFound)
		assert.ErrorIs(t, w.Delete(ctx, "missing"), domain.ErrReportNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, w.CircuitBreakerStats().State)
}

func TestReportRepositoryWrapper_OpensAndRecovers(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	repo := &flakyRepo{
		QualityReportRepository: memory.NewMemoryQualityReportRepository(),
		failures:                3,
		err:                     errors.New("store down"),
	}
	w := newWrapper(t, repo, 0, clk)

	for i := 0; i < 3; i++ {
		_, err := w.List(ctx)
		assert.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, w.CircuitBreakerStats().State)

	_, err := w.List(ctx)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 3, repo.calls)

	// Writes fail fast while open instead of burning retries.
	assert.ErrorIs(t, w.Save(ctx, &domain.QualityReport{SessionID: "room-1"}), circuitbreaker.ErrOpen)
	assert.Equal(t, 3, repo.calls)

	clk.Add(time.Minute)
	_, err = w.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, circuitbreaker.StateClosed, w.CircuitBreakerStats().State)
}
