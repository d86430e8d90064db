package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// healthProbeSession is looked up to exercise the report store. It never
// exists, so a not-found answer means the store is reachable.
const healthProbeSession domain.SessionID = "__health_probe__"

func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, interval, timeout)
}

func (h *HealthChecker) AddRepositoryCheck(repo ports.QualityReportRepository, interval, timeout time.Duration) {
	h.AddCheck("report_store", func(ctx context.Context) error {
		_, err := repo.GetBySession(ctx, healthProbeSession)
		if err == nil || errors.Is(err, domain.ErrReportNotFound) {
			return nil
		}
		return err
	}, interval, timeout)
}

// AddMonitorCheck fails when any monitor that should be polling has stopped.
func (h *HealthChecker) AddMonitorCheck(monitors func() []ports.QualityMonitor, interval, timeout time.Duration) {
	h.AddCheck("monitors", func(ctx context.Context) error {
		var stopped []domain.SessionID
		for _, m := range monitors() {
			if !m.IsMonitoring() {
				stopped = append(stopped, m.SessionID())
			}
		}
		if len(stopped) > 0 {
			return fmt.Errorf("monitoring stopped for %v", stopped)
		}
		return nil
	}, interval, timeout)
}
