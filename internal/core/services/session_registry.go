package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"

	"go.uber.org/zap"
)

// SessionRegistry owns the live monitors and persists a final report when a
// session ends.
type SessionRegistry struct {
	mu       sync.RWMutex
	monitors map[domain.SessionID]*QualityMonitor

	reports ports.QualityReportRepository
	logger  *zap.SugaredLogger

	hooksMu sync.RWMutex
	started []func(id domain.SessionID)
	ended   []func(ctx context.Context, id domain.SessionID)
}

// OnSessionStarted registers fn to run after a monitor is registered.
func (r *SessionRegistry) OnSessionStarted(fn func(id domain.SessionID)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.started = append(r.started, fn)
}

// OnSessionEnded registers fn to run after a session is removed and its
// report saved.
func (r *SessionRegistry) OnSessionEnded(fn func(ctx context.Context, id domain.SessionID)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.ended = append(r.ended, fn)
}

func NewSessionRegistry(reports ports.QualityReportRepository, logger *zap.SugaredLogger) *SessionRegistry {
	return &SessionRegistry{
		monitors: make(map[domain.SessionID]*QualityMonitor),
		reports:  reports,
		logger:   logger,
	}
}

func (r *SessionRegistry) Register(monitor *QualityMonitor) error {
	id := monitor.SessionID()

	r.mu.Lock()
	if _, exists := r.monitors[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrSessionExists, id)
	}
	r.monitors[id] = monitor
	r.mu.Unlock()

	r.logger.Infow("session registered",
		"session_id", id,
		"adaptive", monitor.Adaptive(),
	)

	r.hooksMu.RLock()
	defer r.hooksMu.RUnlock()
	for _, fn := range r.started {
		fn(id)
	}
	return nil
}

func (r *SessionRegistry) Get(id domain.SessionID) (*QualityMonitor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	monitor, ok := r.monitors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return monitor, nil
}

// List returns the live monitors ordered by session id.
func (r *SessionRegistry) List() []*QualityMonitor {
	r.mu.RLock()
	monitors := make([]*QualityMonitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		monitors = append(monitors, m)
	}
	r.mu.RUnlock()

	sort.Slice(monitors, func(i, j int) bool {
		return monitors[i].SessionID() < monitors[j].SessionID()
	})
	return monitors
}

// Summaries returns the list view of every live session.
func (r *SessionRegistry) Summaries() []domain.SessionSummary {
	monitors := r.List()
	summaries := make([]domain.SessionSummary, 0, len(monitors))
	for _, m := range monitors {
		summary := domain.SessionSummary{
			SessionID:      m.SessionID(),
			Adaptive:       m.Adaptive(),
			MonitoringLive: m.IsMonitoring(),
		}
		if assessment, ok := m.Quality(); ok {
			summary.QualityLevel = assessment.Level
			summary.Score = assessment.Score
		}
		if state, ok := m.AdaptationState(); ok {
			summary.AdaptiveLevel = state.Level
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// Report builds the current report of a live session.
func (r *SessionRegistry) Report(id domain.SessionID) (*domain.QualityReport, error) {
	monitor, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return reportOf(monitor), nil
}

// Remove stops the session's monitor and saves its final report. The
// session-ended hooks run even when the save fails.
func (r *SessionRegistry) Remove(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	monitor, ok := r.monitors[id]
	if ok {
		delete(r.monitors, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}

	monitor.StopMonitoring()

	var saveErr error
	if r.reports != nil {
		if err := r.reports.Save(ctx, reportOf(monitor)); err != nil {
			r.logger.Warnw("failed to save final quality report",
				"session_id", id,
				"error", err,
			)
			saveErr = fmt.Errorf("save report: %w", err)
		}
	}

	r.hooksMu.RLock()
	for _, fn := range r.ended {
		fn(ctx, id)
	}
	r.hooksMu.RUnlock()

	if saveErr != nil {
		return saveErr
	}
	r.logger.Infow("session removed", "session_id", id)
	return nil
}

// StopAll stops every monitor and saves their reports. Used on shutdown.
func (r *SessionRegistry) StopAll(ctx context.Context) {
	for _, m := range r.List() {
		if err := r.Remove(ctx, m.SessionID()); err != nil {
			r.logger.Warnw("failed to remove session",
				"session_id", m.SessionID(),
				"error", err,
			)
		}
	}
}

func reportOf(m *QualityMonitor) *domain.QualityReport {
	report := &domain.QualityReport{
		SessionID: m.SessionID(),
		UpdatedAt: time.Now(),
	}
	if assessment, ok := m.Quality(); ok {
		report.Assessment = assessment
	}
	if state, ok := m.AdaptationState(); ok {
		report.Adaptation = state
	}
	return report
}
