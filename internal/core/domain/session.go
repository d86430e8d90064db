package domain

import "time"

type SessionID string

// QualityReport is the persisted diagnostic view of one session: its latest
// assessment and the bounded adaptation history.
type QualityReport struct {
	SessionID  SessionID         `json:"session_id"`
	Assessment QualityAssessment `json:"assessment"`
	Adaptation AdaptationState   `json:"adaptation"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the report.
func (r *QualityReport) Clone() *QualityReport {
	c := *r
	if r.Adaptation.CurrentConstraints != nil {
		constraints := *r.Adaptation.CurrentConstraints
		c.Adaptation.CurrentConstraints = &constraints
	}
	if r.Adaptation.LastAdaptationAt != nil {
		at := *r.Adaptation.LastAdaptationAt
		c.Adaptation.LastAdaptationAt = &at
	}
	if r.Adaptation.History != nil {
		c.Adaptation.History = append([]AdaptationEntry(nil), r.Adaptation.History...)
	}
	return &c
}

// SessionSummary is the list view of a live session.
type SessionSummary struct {
	SessionID      SessionID       `json:"session_id"`
	QualityLevel   QualityLevel    `json:"quality_level"`
	Score          int             `json:"score"`
	AdaptiveLevel  AdaptationLevel `json:"adaptation_level,omitempty"`
	Adaptive       bool            `json:"adaptive"`
	MonitoringLive bool            `json:"monitoring"`
}

// SessionStats aggregates the assessments and adaptations seen for a
// session since monitoring began.
type SessionStats struct {
	SessionID        SessionID            `json:"session_id"`
	Samples          int                  `json:"samples"`
	AverageScore     float64              `json:"average_score"`
	MinScore         int                  `json:"min_score"`
	MaxScore         int                  `json:"max_score"`
	AverageRTT       float64              `json:"average_rtt"`
	LevelCounts      map[QualityLevel]int `json:"level_counts"`
	Adaptations      int                  `json:"adaptations"`
	AudioOnlySamples int                  `json:"audio_only_samples"`
	Timestamp        time.Time            `json:"timestamp"`
}
