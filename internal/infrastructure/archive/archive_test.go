package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/internal/infrastructure/repositories/memory"
	"telemed/pkg/backup"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	busy     bool
	err      error
	unlocked int
}

func (l *fakeLocker) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.busy {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.unlocked++
	return nil
}

type fixture struct {
	clock    *clock.Mock
	reports  ports.QualityReportRepository
	backups  *backup.BackupService
	locker   *fakeLocker
	schedule *Scheduler
	restore  *RestoreService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := zaptest.NewLogger(t).Sugar()

	f := &fixture{
		clock:   clk,
		reports: memory.NewMemoryQualityReportRepository(),
		backups: backup.NewBackupService(storage, "1.0.0", clk),
		locker:  &fakeLocker{},
	}
	f.schedule = NewScheduler(f.backups, f.reports, f.locker, Config{Interval: time.Hour, Retention: 48 * time.Hour}, clk, logger)
	f.restore = NewRestoreService(f.backups, f.reports, logger)
	return f
}

func (f *fixture) save(t *testing.T, id domain.SessionID, score int) {
	t.Helper()
	require.NoError(t, f.reports.Save(context.Background(), &domain.QualityReport{
		SessionID:  id,
		Assessment: domain.QualityAssessment{Level: domain.QualityGood, Score: score, HasData: true},
		Adaptation: domain.AdaptationState{Level: domain.LevelHigh},
		UpdatedAt:  f.clock.Now(),
	}))
}

func TestScheduler_RunOnceArchivesReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.save(t, "room-1", 80)
	f.save(t, "room-2", 55)

	name, err := f.schedule.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backup-20260301-120000.000000000.json", name)
	assert.Equal(t, 1, f.locker.unlocked)

	var snapshot Snapshot
	data, err := f.backups.RestoreBackup(ctx, name, &snapshot)
	require.NoError(t, err)
	assert.Len(t, snapshot.Reports, 2)
	assert.EqualValues(t, 2, data.Metadata["report_count"])
}

func TestScheduler_SkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.locker.busy = true

	name, err := f.schedule.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)

	names, err := f.backups.ListBackups(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	f.locker.busy = false
	f.locker.err = errors.New("redis down")
	_, err = f.schedule.RunOnce(ctx)
	assert.Error(t, err)
}

func TestScheduler_PrunesExpiredArchives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.save(t, "room-1", 80)

	first, err := f.schedule.RunOnce(ctx)
	require.NoError(t, err)
	f.clock.Add(24 * time.Hour)
	_, err = f.schedule.RunOnce(ctx)
	require.NoError(t, err)
	f.clock.Add(48 * time.Hour)
	_, err = f.schedule.RunOnce(ctx)
	require.NoError(t, err)

	names, err := f.backups.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 2)
	assert.NotContains(t, names, first)
}

func TestScheduler_StartRunsOnInterval(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.schedule.Start(ctx)
		close(done)
	}()

	count := func() int {
		names, err := f.backups.ListBackups(context.Background())
		if err != nil {
			return -1
		}
		return len(names)
	}
	assert.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)

	f.clock.Add(time.Hour)
	assert.Eventually(t, func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRestoreService_RestoreFromBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.save(t, "room-1", 80)
	f.save(t, "room-2", 55)

	name, err := f.schedule.RunOnce(ctx)
	require.NoError(t, err)

	require.NoError(t, f.reports.Delete(ctx, "room-1"))
	f.save(t, "room-2", 10)

	result, err := f.restore.RestoreFromBackup(ctx, name, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"room-1"}, result.Restored)
	assert.Equal(t, []domain.SessionID{"room-2"}, result.Skipped)

	kept, err := f.reports.GetBySession(ctx, "room-2")
	require.NoError(t, err)
	assert.Equal(t, 10, kept.Assessment.Score)

	result, err = f.restore.RestoreFromBackup(ctx, name, RestoreOptions{OverwriteExisting: true})
	require.NoError(t, err)
	assert.Len(t, result.Restored, 2)
	assert.Empty(t, result.Skipped)

	restored, err := f.reports.GetBySession(ctx, "room-2")
	require.NoError(t, err)
	assert.Equal(t, 55, restored.Assessment.Score)

	_, err = f.restore.RestoreFromBackup(ctx, "backup-missing.json", RestoreOptions{})
	assert.Error(t, err)
}

func TestRestoreService_FindBackupByTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.schedule.RunOnce(ctx)
	require.NoError(t, err)
	f.clock.Add(time.Hour)
	second, err := f.schedule.RunOnce(ctx)
	require.NoError(t, err)

	found, err := f.restore.FindBackupByTime(ctx, f.clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first, found)

	found, err = f.restore.FindBackupByTime(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, second, found)

	_, err = f.restore.FindBackupByTime(ctx, f.clock.Now().Add(-24*time.Hour))
	assert.Error(t, err)
}
