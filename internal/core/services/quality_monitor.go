package services

import (
	"context"
	"sync"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"

	"go.uber.org/zap"
)

const subscriberBuffer = 8

// QualityMonitor ties a collector, the scorer and an optional adaptation
// engine together for one session and keeps the latest assessment as a read
// model. A monitor without an engine is diagnostic only.
type QualityMonitor struct {
	sessionID domain.SessionID
	collector ports.MetricsCollector
	scorer    *QualityService
	engine    *AdaptiveBitrateService
	logger    *zap.SugaredLogger
	observers []ports.QualityObserver

	mu          sync.RWMutex
	latest      domain.QualityAssessment
	hasLatest   bool
	subscribers map[int]chan domain.QualityAssessment
	nextSubID   int
}

// NewQualityMonitor creates an adaptive monitor.
func NewQualityMonitor(
	sessionID domain.SessionID,
	collector ports.MetricsCollector,
	scorer *QualityService,
	engine *AdaptiveBitrateService,
	logger *zap.SugaredLogger,
	observers ...ports.QualityObserver,
) *QualityMonitor {
	m := &QualityMonitor{
		sessionID:   sessionID,
		collector:   collector,
		scorer:      scorer,
		engine:      engine,
		logger:      logger.With("session_id", sessionID),
		observers:   observers,
		subscribers: make(map[int]chan domain.QualityAssessment),
	}
	if engine != nil {
		engine.OnAdapted(m.notifyAdaptation)
	}
	return m
}

// NewDiagnosticMonitor creates a monitor that only scores.
func NewDiagnosticMonitor(
	sessionID domain.SessionID,
	collector ports.MetricsCollector,
	scorer *QualityService,
	logger *zap.SugaredLogger,
	observers ...ports.QualityObserver,
) *QualityMonitor {
	return NewQualityMonitor(sessionID, collector, scorer, nil, logger, observers...)
}

func (m *QualityMonitor) SessionID() domain.SessionID {
	return m.sessionID
}

// Adaptive reports whether the monitor drives an adaptation engine.
func (m *QualityMonitor) Adaptive() bool {
	return m.engine != nil
}

// StartMonitoring begins polling. Calling it while running is a no-op.
func (m *QualityMonitor) StartMonitoring(ctx context.Context) {
	if m.collector == nil || m.collector.IsRunning() {
		return
	}
	m.logger.Infow("quality monitoring started", "adaptive", m.engine != nil)
	m.collector.Start(ctx, m.Process)
}

// StopMonitoring stops polling. No assessment is published after it returns.
func (m *QualityMonitor) StopMonitoring() {
	if m.collector == nil || !m.collector.IsRunning() {
		return
	}
	m.collector.Stop()
	m.logger.Infow("quality monitoring stopped")
}

func (m *QualityMonitor) IsMonitoring() bool {
	return m.collector != nil && m.collector.IsRunning()
}

// Process scores one snapshot, publishes it and, when it carries data, lets
// the engine react. The collector calls it on every poll.
func (m *QualityMonitor) Process(ctx context.Context, snapshot domain.MetricsSnapshot) {
	assessment := m.scorer.Score(snapshot)

	m.mu.Lock()
	m.latest = assessment
	m.hasLatest = true
	for _, ch := range m.subscribers {
		select {
		case ch <- assessment:
		default:
			// slow subscriber, drop
		}
	}
	m.mu.Unlock()

	for _, o := range m.observers {
		o.OnAssessment(m.sessionID, assessment)
	}

	if assessment.HasData {
		m.AdaptQuality(ctx, assessment)
	}
}

// Quality returns the latest assessment; false until the first poll.
func (m *QualityMonitor) Quality() (domain.QualityAssessment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasLatest
}

// AdaptQuality feeds an assessment to the engine and reports whether a change
// was applied.
func (m *QualityMonitor) AdaptQuality(ctx context.Context, assessment domain.QualityAssessment) bool {
	if m.engine == nil {
		return false
	}
	return m.engine.Consider(ctx, assessment)
}

func (m *QualityMonitor) ForceQualityLevel(ctx context.Context, level domain.AdaptationLevel) error {
	if m.engine == nil {
		return domain.ErrAdaptationDisabled
	}
	return m.engine.ForceLevel(ctx, level)
}

func (m *QualityMonitor) ResetToMaxQuality(ctx context.Context) error {
	if m.engine == nil {
		return domain.ErrAdaptationDisabled
	}
	return m.engine.ResetToMax(ctx)
}

// AdaptationState returns the engine state; false for diagnostic monitors.
func (m *QualityMonitor) AdaptationState() (domain.AdaptationState, bool) {
	if m.engine == nil {
		return domain.AdaptationState{}, false
	}
	return m.engine.State(), true
}

func (m *QualityMonitor) AdaptationHistory() []domain.AdaptationEntry {
	if m.engine == nil {
		return nil
	}
	return m.engine.History()
}

// Subscribe returns a channel receiving every new assessment and a function
// that unsubscribes and closes it. Slow readers miss updates.
func (m *QualityMonitor) Subscribe() (<-chan domain.QualityAssessment, func()) {
	ch := make(chan domain.QualityAssessment, subscriberBuffer)

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *QualityMonitor) notifyAdaptation(entry domain.AdaptationEntry, state domain.AdaptationState) {
	for _, o := range m.observers {
		o.OnAdaptation(m.sessionID, entry, state)
	}
}

var _ ports.QualityMonitor = (*QualityMonitor)(nil)
