package services

import (
	"sync"

	"telemed/internal/core/domain"
)

// MetricsService keeps running per-session aggregates. It observes monitors
// and only counts assessments that carry data.
type MetricsService struct {
	mu sync.RWMutex

	stats     map[domain.SessionID]*domain.SessionStats
	scoreSum  map[domain.SessionID]int
	rttSum    map[domain.SessionID]float64
	audioOnly map[domain.SessionID]bool
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		stats:     make(map[domain.SessionID]*domain.SessionStats),
		scoreSum:  make(map[domain.SessionID]int),
		rttSum:    make(map[domain.SessionID]float64),
		audioOnly: make(map[domain.SessionID]bool),
	}
}

func (m *MetricsService) OnAssessment(sessionID domain.SessionID, assessment domain.QualityAssessment) {
	if !assessment.HasData {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.statsLocked(sessionID)
	if stats.Samples == 0 || assessment.Score < stats.MinScore {
		stats.MinScore = assessment.Score
	}
	if assessment.Score > stats.MaxScore {
		stats.MaxScore = assessment.Score
	}
	stats.Samples++
	m.scoreSum[sessionID] += assessment.Score
	m.rttSum[sessionID] += assessment.RTT
	stats.AverageScore = float64(m.scoreSum[sessionID]) / float64(stats.Samples)
	stats.AverageRTT = m.rttSum[sessionID] / float64(stats.Samples)
	stats.LevelCounts[assessment.Level]++
	if m.audioOnly[sessionID] {
		stats.AudioOnlySamples++
	}
	stats.Timestamp = assessment.Timestamp
}

func (m *MetricsService) OnAdaptation(sessionID domain.SessionID, entry domain.AdaptationEntry, state domain.AdaptationState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.statsLocked(sessionID)
	stats.Adaptations++
	m.audioOnly[sessionID] = state.IsAudioOnly
}

// GetSessionStats returns a copy of the aggregates, or zero stats for an
// unknown session.
func (m *MetricsService) GetSessionStats(sessionID domain.SessionID) domain.SessionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.stats[sessionID]
	if !ok {
		return domain.SessionStats{
			SessionID:   sessionID,
			LevelCounts: map[domain.QualityLevel]int{},
		}
	}

	out := *stats
	out.LevelCounts = make(map[domain.QualityLevel]int, len(stats.LevelCounts))
	for level, n := range stats.LevelCounts {
		out.LevelCounts[level] = n
	}
	return out
}

// RemoveSession drops the aggregates of an ended session.
func (m *MetricsService) RemoveSession(sessionID domain.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, sessionID)
	delete(m.scoreSum, sessionID)
	delete(m.rttSum, sessionID)
	delete(m.audioOnly, sessionID)
}

func (m *MetricsService) statsLocked(sessionID domain.SessionID) *domain.SessionStats {
	stats, ok := m.stats[sessionID]
	if !ok {
		stats = &domain.SessionStats{
			SessionID:   sessionID,
			LevelCounts: make(map[domain.QualityLevel]int),
		}
		m.stats[sessionID] = stats
	}
	return stats
}
