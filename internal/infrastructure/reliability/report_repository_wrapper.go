package reliability

import (
	"context"
	"errors"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/pkg/circuitbreaker"
	"telemed/pkg/retry"
	"telemed/pkg/tracing"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ReportRepositoryWrapper guards a remote report store with a circuit
// breaker and retries writes. Reads are not retried; a missing report is an
// answer, not a failure of the store.
type ReportRepositoryWrapper struct {
	name           string
	repo           ports.QualityReportRepository
	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.SugaredLogger
}

var _ ports.QualityReportRepository = (*ReportRepositoryWrapper)(nil)

func NewReportRepositoryWrapper(
	repo ports.QualityReportRepository,
	name string,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	clk clock.Clock,
	logger *zap.SugaredLogger,
) *ReportRepositoryWrapper {
	w := &ReportRepositoryWrapper{
		name:           name,
		repo:           repo,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(name, cbConfig, clk),
		logger:         logger,
	}

	w.circuitBreaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Warnw("report store circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

// guard runs fn through the breaker. Not-found results pass through without
// counting against the store.
func (w *ReportRepositoryWrapper) guard(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.TraceRepositoryOperation(ctx, op, w.name)
	defer span.End()

	var notFound error
	err := w.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, domain.ErrReportNotFound) {
			notFound = err
			return nil
		}
		return err
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return notFound
}

func (w *ReportRepositoryWrapper) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, w.retryConfig, func(ctx context.Context) error {
		err := w.guard(ctx, op, fn)
		if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, domain.ErrReportNotFound) {
			return retry.Permanent(err)
		}
		return err
	}, func(err error, delay time.Duration) {
		w.logger.Debugw("retrying report store operation",
			"operation", op,
			"error", err,
			"delay", delay,
		)
	})
}

func (w *ReportRepositoryWrapper) Save(ctx context.Context, report *domain.QualityReport) error {
	return w.withRetry(ctx, "save", func(ctx context.Context) error {
		return w.repo.Save(ctx, report)
	})
}

func (w *ReportRepositoryWrapper) Delete(ctx context.Context, id domain.SessionID) error {
	return w.withRetry(ctx, "delete", func(ctx context.Context) error {
		return w.repo.Delete(ctx, id)
	})
}

func (w *ReportRepositoryWrapper) GetBySession(ctx context.Context, id domain.SessionID) (*domain.QualityReport, error) {
	var report *domain.QualityReport
	err := w.guard(ctx, "get", func(ctx context.Context) error {
		var err error
		report, err = w.repo.GetBySession(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (w *ReportRepositoryWrapper) List(ctx context.Context) ([]*domain.QualityReport, error) {
	var reports []*domain.QualityReport
	err := w.guard(ctx, "list", func(ctx context.Context) error {
		var err error
		reports, err = w.repo.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// CircuitBreakerStats returns the breaker statistics.
func (w *ReportRepositoryWrapper) CircuitBreakerStats() circuitbreaker.Stats {
	return w.circuitBreaker.Stats()
}
