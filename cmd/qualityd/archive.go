package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"telemed/internal/core/ports"
	"telemed/internal/infrastructure/archive"
	"telemed/internal/infrastructure/repositories"
	"telemed/pkg/backup"
	"telemed/pkg/config"
	distlock "telemed/pkg/distributed"
	"telemed/pkg/retry"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const archiveLockTTL = time.Minute

func newBackupService(cfg *config.Config) (*backup.BackupService, error) {
	storage, err := backup.NewFileStorage(cfg.Archive.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive directory: %w", err)
	}
	return backup.NewBackupService(storage, version, nil), nil
}

func newArchiveScheduler(cfg *config.Config, reports ports.QualityReportRepository, redisClient *redis.Client, log *zap.SugaredLogger) (*archive.Scheduler, error) {
	svc, err := newBackupService(cfg)
	if err != nil {
		return nil, err
	}

	var locker archive.Locker
	if redisClient != nil {
		locker = distlock.NewLockManager(redisClient, cfg.Redis.KeyPrefix).NewLock("archive", archiveLockTTL)
	}
	return archive.NewScheduler(svc, reports, locker, archive.Config{
		Interval:  cfg.Archive.Interval,
		Retention: cfg.Archive.Retention,
	}, nil, log), nil
}

// withReports opens the configured report store for a one-shot command.
func withReports(fn func(ctx context.Context, cfg *config.Config, reports ports.QualityReportRepository, log *zap.SugaredLogger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zapLogger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx := context.Background()
	factory, err := repositories.NewRepositoryFactory(ctx, cfg, retry.DefaultConfig(), log)
	if err != nil {
		return err
	}
	defer factory.Close()

	return fn(ctx, cfg, factory.QualityReportRepository(), log)
}

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Create, list and restore quality report archives",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archives, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := newBackupService(cfg)
			if err != nil {
				return err
			}
			names, err := svc.ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Archive every stored report now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReports(func(ctx context.Context, cfg *config.Config, reports ports.QualityReportRepository, log *zap.SugaredLogger) error {
				scheduler, err := newArchiveScheduler(cfg, reports, nil, log)
				if err != nil {
					return err
				}
				name, err := scheduler.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			})
		},
	})

	var overwrite bool
	restoreCmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Load an archive back into the report store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReports(func(ctx context.Context, cfg *config.Config, reports ports.QualityReportRepository, log *zap.SugaredLogger) error {
				svc, err := newBackupService(cfg)
				if err != nil {
					return err
				}
				result, err := archive.NewRestoreService(svc, reports, log).
					RestoreFromBackup(ctx, args[0], archive.RestoreOptions{OverwriteExisting: overwrite})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			})
		},
	}
	restoreCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace reports that already exist")
	cmd.AddCommand(restoreCmd)

	return cmd
}
