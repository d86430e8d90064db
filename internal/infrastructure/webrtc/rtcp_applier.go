package webrtc

import (
	"context"
	"fmt"
	"sync"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"

	"github.com/pion/rtcp"
	"go.uber.org/zap"
)

const (
	// audioOnlyBitrate caps the sender while video is suspended.
	audioOnlyBitrate = 64_000
	// bitsPerPixel converts a tier into a REMB bitrate cap.
	bitsPerPixel = 0.1
)

// RTCPWriter is satisfied by *webrtc.PeerConnection.
type RTCPWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// RTCPApplier applies adaptation decisions to a remote sender: REMB caps its
// encoder bitrate to the tier and the gate stops or resumes forwarding video.
// Leaving audio-only asks the sender for a fresh keyframe.
type RTCPApplier struct {
	writer RTCPWriter
	gate   *VideoGate
	logger *zap.SugaredLogger

	mu         sync.RWMutex
	videoSSRCs []uint32
}

func NewRTCPApplier(writer RTCPWriter, gate *VideoGate, logger *zap.SugaredLogger) *RTCPApplier {
	if gate == nil {
		gate = NewVideoGate()
	}
	return &RTCPApplier{
		writer: writer,
		gate:   gate,
		logger: logger,
	}
}

// SetVideoSSRCs records the sender's video SSRCs, typically from OnTrack.
func (a *RTCPApplier) SetVideoSSRCs(ssrcs ...uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.videoSSRCs = append([]uint32(nil), ssrcs...)
}

func (a *RTCPApplier) ssrcs() []uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]uint32(nil), a.videoSSRCs...)
}

// BitrateFor returns the REMB cap for a tier.
func BitrateFor(c domain.VideoConstraints) float32 {
	return float32(float64(c.Pixels()) * float64(c.FrameRate) * bitsPerPixel)
}

func (a *RTCPApplier) ApplyConstraints(ctx context.Context, constraints domain.VideoConstraints) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ssrcs := a.ssrcs()
	if len(ssrcs) == 0 {
		return fmt.Errorf("no video ssrc registered")
	}

	bitrate := BitrateFor(constraints)
	if err := a.writer.WriteRTCP([]rtcp.Packet{
		&rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: bitrate, SSRCs: ssrcs},
	}); err != nil {
		return fmt.Errorf("write remb: %w", err)
	}

	a.logger.Debugw("sent bitrate cap",
		"constraints", constraints.String(),
		"bitrate", bitrate,
	)
	return nil
}

func (a *RTCPApplier) SetAudioOnly(ctx context.Context, enable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ssrcs := a.ssrcs()
	var pkts []rtcp.Packet
	if enable {
		if len(ssrcs) > 0 {
			pkts = append(pkts, &rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: audioOnlyBitrate, SSRCs: ssrcs})
		}
	} else {
		for _, ssrc := range ssrcs {
			pkts = append(pkts, &rtcp.PictureLossIndication{MediaSSRC: ssrc})
		}
	}

	if len(pkts) > 0 {
		if err := a.writer.WriteRTCP(pkts); err != nil {
			return fmt.Errorf("write rtcp: %w", err)
		}
	}

	a.gate.SetAudioOnly(enable)
	a.logger.Infow("audio-only mode changed", "enabled", enable)
	return nil
}

var _ ports.ConstraintApplier = (*RTCPApplier)(nil)
