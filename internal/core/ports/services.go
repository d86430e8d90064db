package ports

import (
	"context"

	"telemed/internal/core/domain"

	"github.com/pion/webrtc/v4"
)

// StatsSource is the read-only view of a peer connection used for polling.
// *webrtc.PeerConnection satisfies it.
type StatsSource interface {
	GetStats() webrtc.StatsReport
	ConnectionState() webrtc.PeerConnectionState
}

// MetricsCollector polls a StatsSource and delivers normalized snapshots.
// Snapshots are delivered one at a time, in order, and never after Stop
// returns.
type MetricsCollector interface {
	Start(ctx context.Context, onSnapshot func(ctx context.Context, snapshot domain.MetricsSnapshot))
	Stop()
	IsRunning() bool
}

// ConstraintApplier performs the actual media change requested by the
// adaptation engine. A returned error means the change did not take effect.
type ConstraintApplier interface {
	ApplyConstraints(ctx context.Context, constraints domain.VideoConstraints) error
	SetAudioOnly(ctx context.Context, enable bool) error
}

// QualityObserver receives read-model updates from a monitor. Implementations
// must not block.
type QualityObserver interface {
	OnAssessment(sessionID domain.SessionID, assessment domain.QualityAssessment)
	OnAdaptation(sessionID domain.SessionID, entry domain.AdaptationEntry, state domain.AdaptationState)
}

// QualityMonitor is the per-session surface consumed by the HTTP layer.
type QualityMonitor interface {
	SessionID() domain.SessionID
	StartMonitoring(ctx context.Context)
	StopMonitoring()
	IsMonitoring() bool
	Quality() (domain.QualityAssessment, bool)
	AdaptQuality(ctx context.Context, assessment domain.QualityAssessment) bool
	ForceQualityLevel(ctx context.Context, level domain.AdaptationLevel) error
	ResetToMaxQuality(ctx context.Context) error
	AdaptationState() (domain.AdaptationState, bool)
	AdaptationHistory() []domain.AdaptationEntry
	Subscribe() (<-chan domain.QualityAssessment, func())
}
