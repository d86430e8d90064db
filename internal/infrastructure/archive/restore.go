package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/pkg/backup"

	"go.uber.org/zap"
)

// RestoreOptions contains restore options
type RestoreOptions struct {
	// OverwriteExisting replaces reports that are already stored.
	OverwriteExisting bool
}

// RestoreResult lists what a restore did per session.
type RestoreResult struct {
	Restored []domain.SessionID `json:"restored"`
	Skipped  []domain.SessionID `json:"skipped"`
}

// RestoreService loads archived reports back into the report repository.
type RestoreService struct {
	backupService *backup.BackupService
	reports       ports.QualityReportRepository
	logger        *zap.SugaredLogger
}

// NewRestoreService creates a new restore service
func NewRestoreService(backupService *backup.BackupService, reports ports.QualityReportRepository, logger *zap.SugaredLogger) *RestoreService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RestoreService{
		backupService: backupService,
		reports:       reports,
		logger:        logger,
	}
}

// RestoreFromBackup restores the reports held in the named archive.
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, name string, options RestoreOptions) (*RestoreResult, error) {
	rs.logger.Infow("starting restore", "backup_name", name, "overwrite", options.OverwriteExisting)

	var snapshot Snapshot
	if _, err := rs.backupService.RestoreBackup(ctx, name, &snapshot); err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, report := range snapshot.Reports {
		if report == nil || report.SessionID == "" {
			continue
		}

		if !options.OverwriteExisting {
			_, err := rs.reports.GetBySession(ctx, report.SessionID)
			if err == nil {
				result.Skipped = append(result.Skipped, report.SessionID)
				continue
			}
			if !errors.Is(err, domain.ErrReportNotFound) {
				return result, fmt.Errorf("failed to check report %s: %w", report.SessionID, err)
			}
		}

		if err := rs.reports.Save(ctx, report); err != nil {
			return result, fmt.Errorf("failed to restore report %s: %w", report.SessionID, err)
		}
		result.Restored = append(result.Restored, report.SessionID)
	}

	rs.logger.Infow("restore completed",
		"backup_name", name,
		"restored", len(result.Restored),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// FindBackupByTime returns the newest archive taken at or before target.
func (rs *RestoreService) FindBackupByTime(ctx context.Context, target time.Time) (string, error) {
	names, err := rs.backupService.ListBackups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}

	var (
		closest     string
		closestTime time.Time
	)
	for _, name := range names {
		taken, ok := backup.BackupTime(name)
		if !ok || taken.After(target) {
			continue
		}
		if closest == "" || taken.After(closestTime) {
			closest, closestTime = name, taken
		}
	}

	if closest == "" {
		return "", fmt.Errorf("no backup found at or before %v", target)
	}
	return closest, nil
}
