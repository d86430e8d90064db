package webrtc

import (
	"context"

	"telemed/internal/core/ports"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// ConnectionStateNotifier is satisfied by *webrtc.PeerConnection.
type ConnectionStateNotifier interface {
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
}

// BindPeerConnection starts the monitor when the connection comes up and
// stops it when the connection goes away.
func BindPeerConnection(ctx context.Context, pc ConnectionStateNotifier, monitor ports.QualityMonitor, logger *zap.SugaredLogger) {
	pc.OnConnectionStateChange(handleConnectionState(ctx, monitor, logger))
}

func handleConnectionState(ctx context.Context, monitor ports.QualityMonitor, logger *zap.SugaredLogger) func(webrtc.PeerConnectionState) {
	return func(state webrtc.PeerConnectionState) {
		logger.Infow("peer connection state changed",
			"session_id", monitor.SessionID(),
			"state", state.String(),
		)

		switch state {
		case webrtc.PeerConnectionStateConnected:
			monitor.StartMonitoring(ctx)
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			monitor.StopMonitoring()
		}
	}
}
