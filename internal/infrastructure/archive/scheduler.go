package archive

import (
	"context"
	"fmt"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/pkg/backup"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Locker keeps concurrent instances from archiving at the same time.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Config contains scheduler configuration
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// Snapshot is the payload stored in every report archive.
type Snapshot struct {
	Reports []*domain.QualityReport `json:"reports"`
}

// Scheduler periodically archives all stored quality reports and prunes
// archives older than the retention window.
type Scheduler struct {
	backupService *backup.BackupService
	reports       ports.QualityReportRepository
	locker        Locker
	cfg           Config
	clock         clock.Clock
	logger        *zap.SugaredLogger
}

// NewScheduler creates a new archive scheduler. locker may be nil for a
// single instance deployment.
func NewScheduler(
	backupService *backup.BackupService,
	reports ports.QualityReportRepository,
	locker Locker,
	cfg Config,
	clk clock.Clock,
	logger *zap.SugaredLogger,
) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		backupService: backupService,
		reports:       reports,
		locker:        locker,
		cfg:           cfg,
		clock:         clk,
		logger:        logger,
	}
}

// Start archives once immediately and then on every interval until ctx is
// done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := s.clock.Ticker(s.cfg.Interval)
	defer ticker.Stop()

	s.run(ctx)
	for {
		select {
		case <-ticker.C:
			s.run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	name, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Errorw("scheduled archive failed", "error", err)
		return
	}
	if name != "" {
		s.logger.Infow("archive created", "backup_name", name)
	}
}

// RunOnce writes one archive and prunes expired ones. It returns an empty
// name when another instance holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	if s.locker != nil {
		acquired, err := s.locker.TryLock(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to acquire archive lock: %w", err)
		}
		if !acquired {
			s.logger.Debug("archive lock held elsewhere, skipping")
			return "", nil
		}
		defer func() {
			if err := s.locker.Unlock(ctx); err != nil {
				s.logger.Warnw("failed to release archive lock", "error", err)
			}
		}()
	}

	reports, err := s.reports.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list reports: %w", err)
	}

	name, err := s.backupService.CreateBackup(ctx, Snapshot{Reports: reports}, map[string]interface{}{
		"report_count": len(reports),
		"backup_type":  "scheduled",
	})
	if err != nil {
		return "", err
	}

	if s.cfg.Retention > 0 {
		pruned, err := s.backupService.PruneOlderThan(ctx, s.clock.Now().Add(-s.cfg.Retention))
		if err != nil {
			s.logger.Warnw("failed to prune old archives", "error", err)
		} else if len(pruned) > 0 {
			s.logger.Infow("pruned old archives", "count", len(pruned))
		}
	}
	return name, nil
}
