package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telemed/internal/core/domain"
	"telemed/pkg/retry"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// Options configures the connection pool.
type Options struct {
	DSN             string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS quality_reports (
	session_id       TEXT PRIMARY KEY,
	quality_level    TEXT NOT NULL,
	score            INTEGER NOT NULL,
	adaptation_level TEXT NOT NULL DEFAULT '',
	audio_only       BOOLEAN NOT NULL DEFAULT FALSE,
	payload          JSONB NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quality_reports_updated_at ON quality_reports (updated_at);
`

// Connect opens the pool and pings until the database answers or the retry
// budget runs out.
func Connect(ctx context.Context, opts Options, retryCfg retry.Config, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxConnections > 0 {
		db.SetMaxOpenConns(opts.MaxConnections)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}, func(err error, delay time.Duration) {
		logger.Warnw("postgres not ready, retrying", "error", err, "delay", delay)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infow("connected to postgres", "max_connections", opts.MaxConnections)
	return db, nil
}

type reportRow struct {
	Payload []byte `db:"payload"`
}

// QualityReportRepository keeps one row per session. The full report lives
// in payload; the flat columns are for ad hoc queries.
type QualityReportRepository struct {
	db *sqlx.DB
}

func NewQualityReportRepository(db *sqlx.DB) *QualityReportRepository {
	return &QualityReportRepository{db: db}
}

// Migrate creates the table and index if they do not exist.
func (r *QualityReportRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (r *QualityReportRepository) Save(ctx context.Context, report *domain.QualityReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO quality_reports (session_id, quality_level, score, adaptation_level, audio_only, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			quality_level = EXCLUDED.quality_level,
			score = EXCLUDED.score,
			adaptation_level = EXCLUDED.adaptation_level,
			audio_only = EXCLUDED.audio_only,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		string(report.SessionID),
		string(report.Assessment.Level),
		report.Assessment.Score,
		string(report.Adaptation.Level),
		report.Adaptation.IsAudioOnly,
		payload,
		report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (r *QualityReportRepository) GetBySession(ctx context.Context, id domain.SessionID) (*domain.QualityReport, error) {
	var row reportRow
	err := r.db.GetContext(ctx, &row, `SELECT payload FROM quality_reports WHERE session_id = $1`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return decodeReport(row.Payload)
}

func (r *QualityReportRepository) Delete(ctx context.Context, id domain.SessionID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM quality_reports WHERE session_id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if affected == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

func (r *QualityReportRepository) List(ctx context.Context) ([]*domain.QualityReport, error) {
	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT payload FROM quality_reports ORDER BY session_id`); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := make([]*domain.QualityReport, 0, len(rows))
	for _, row := range rows {
		report, err := decodeReport(row.Payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// DeleteOlderThan removes reports not updated since cutoff.
func (r *QualityReportRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM quality_reports WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old reports: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck pings the database.
func (r *QualityReportRepository) HealthCheck(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *QualityReportRepository) Close() error {
	return r.db.Close()
}

func decodeReport(payload []byte) (*domain.QualityReport, error) {
	var report domain.QualityReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}
