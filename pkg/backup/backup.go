package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	namePrefix = "backup-"
	nameSuffix = ".json"
	nameLayout = "20060102-150405.000000000"
)

// ErrInvalidBackup is returned for archives that cannot be read back.
var ErrInvalidBackup = errors.New("invalid backup")

// BackupData is the envelope written for every backup. Payload holds the
// caller's data as JSON.
type BackupData struct {
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   json.RawMessage        `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Storage defines interface for backup storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// BackupService handles backup operations
type BackupService struct {
	storage Storage
	version string
	clock   clock.Clock
}

// NewBackupService creates a new backup service. A nil clock uses wall time.
func NewBackupService(storage Storage, version string, clk clock.Clock) *BackupService {
	if clk == nil {
		clk = clock.New()
	}
	return &BackupService{
		storage: storage,
		version: version,
		clock:   clk,
	}
}

// CreateBackup serializes payload into a new timestamped backup and returns
// its name.
func (bs *BackupService) CreateBackup(ctx context.Context, payload interface{}, metadata map[string]interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup payload: %w", err)
	}

	data := BackupData{
		Version:   bs.version,
		Timestamp: bs.clock.Now().UTC(),
		Payload:   raw,
		Metadata:  metadata,
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup data: %w", err)
	}

	name := namePrefix + data.Timestamp.Format(nameLayout) + nameSuffix
	if err := bs.storage.Save(ctx, name, bytes.NewReader(encoded)); err != nil {
		return "", fmt.Errorf("failed to save backup: %w", err)
	}
	return name, nil
}

// RestoreBackup loads a backup and decodes its payload into into.
func (bs *BackupService) RestoreBackup(ctx context.Context, name string, into interface{}) (*BackupData, error) {
	reader, err := bs.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup data: %w", err)
	}

	var data BackupData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if data.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidBackup)
	}
	if into != nil {
		if err := json.Unmarshal(data.Payload, into); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrInvalidBackup, err)
		}
	}
	return &data, nil
}

// ListBackups returns backup names, oldest first.
func (bs *BackupService) ListBackups(ctx context.Context) ([]string, error) {
	names, err := bs.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// DeleteBackup deletes a backup
func (bs *BackupService) DeleteBackup(ctx context.Context, name string) error {
	return bs.storage.Delete(ctx, name)
}

// PruneOlderThan deletes backups taken before cutoff and returns their
// names. Names that do not parse are left alone.
func (bs *BackupService) PruneOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	names, err := bs.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var deleted []string
	for _, name := range names {
		taken, ok := BackupTime(name)
		if !ok || !taken.Before(cutoff) {
			continue
		}
		if err := bs.storage.Delete(ctx, name); err != nil {
			return deleted, fmt.Errorf("failed to delete backup %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// BackupTime parses the timestamp out of a backup name.
func BackupTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	t, err := time.Parse(nameLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
