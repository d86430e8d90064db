package simulation

import (
	"math"
	"sync"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
)

const (
	videoPayloadBytes = 1200
	audioPayloadBytes = 160
	audioPacketRate   = 50
	videoBitsPerPixel = 0.1

	videoSSRC webrtc.SSRC = 0x1001
	audioSSRC webrtc.SSRC = 0x2001
)

// stream keeps fractional counters so slow rates still accumulate.
type stream struct {
	packets float64
	lost    float64
	bytes   float64
	frames  float64
	dropped float64
}

// Source plays a Scenario as a peer connection. Counters only grow, and the
// sent video follows whatever the Applier last accepted.
type Source struct {
	scenario Scenario
	clock    clock.Clock
	applier  *Applier

	mu       sync.Mutex
	started  time.Time
	lastPoll time.Time
	outVideo stream
	outAudio stream
	inVideo  stream
	inAudio  stream
}

// NewSource starts the scenario at the clock's current time. A nil applier
// keeps video at the max preset.
func NewSource(scenario Scenario, clk clock.Clock, applier *Applier) *Source {
	if clk == nil {
		clk = clock.New()
	}
	if applier == nil {
		applier = NewApplier(domain.DefaultQualityPresets()[domain.LevelMax])
	}
	now := clk.Now()
	return &Source{
		scenario: scenario,
		clock:    clk,
		applier:  applier,
		started:  now,
		lastPoll: now,
	}
}

func (s *Source) Scenario() Scenario {
	return s.scenario
}

// Phase returns the phase currently being played.
func (s *Source) Phase() Phase {
	return s.scenario.PhaseAt(s.clock.Since(s.started))
}

func (s *Source) ConnectionState() webrtc.PeerConnectionState {
	if s.Phase().Disconnected {
		return webrtc.PeerConnectionStateDisconnected
	}
	return webrtc.PeerConnectionStateConnected
}

// GetStats advances the counters to now and returns a report shaped like
// the one a pion peer connection produces.
func (s *Source) GetStats() webrtc.StatsReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	phase := s.scenario.PhaseAt(now.Sub(s.started))
	dt := now.Sub(s.lastPoll).Seconds()
	s.lastPoll = now
	if dt < 0 {
		dt = 0
	}

	constraints, audioOnly := s.applier.Current()
	fps := float64(constraints.FrameRate)

	videoBps := 0.0
	if !audioOnly {
		videoBps = float64(constraints.Pixels()) * fps * videoBitsPerPixel
		if phase.BandwidthBps > 0 {
			videoBps = math.Min(videoBps, phase.BandwidthBps)
		}
	}
	lossRatio := phase.LossPct / 100

	if !phase.Disconnected {
		videoPackets := videoBps / (videoPayloadBytes * 8) * dt
		s.outVideo.advance(videoPackets, 0, videoPackets*videoPayloadBytes, fps*dt, 0)
		s.inVideo.advance(videoPackets*(1-lossRatio), videoPackets*lossRatio,
			videoPackets*(1-lossRatio)*videoPayloadBytes, fps*dt*(1-lossRatio), fps*dt*lossRatio)

		audioPackets := audioPacketRate * dt
		s.outAudio.advance(audioPackets, 0, audioPackets*audioPayloadBytes, 0, 0)
		s.inAudio.advance(audioPackets*(1-lossRatio), audioPackets*lossRatio,
			audioPackets*(1-lossRatio)*audioPayloadBytes, 0, 0)
	}

	ts := webrtc.StatsTimestamp(float64(now.UnixNano()) / float64(time.Millisecond))
	jitterS := phase.JitterMs / 1000

	report := webrtc.StatsReport{
		"candidate-pair": webrtc.ICECandidatePairStats{
			ID:                       "candidate-pair",
			Type:                     webrtc.StatsTypeCandidatePair,
			Timestamp:                ts,
			State:                    webrtc.StatsICECandidatePairStateSucceeded,
			Nominated:                true,
			CurrentRoundTripTime:     phase.RTTMs / 1000,
			AvailableOutgoingBitrate: phase.BandwidthBps,
		},
		"outbound-audio": webrtc.OutboundRTPStreamStats{
			ID:          "outbound-audio",
			Type:        webrtc.StatsTypeOutboundRTP,
			Timestamp:   ts,
			SSRC:        audioSSRC,
			Kind:        string(webrtc.MediaKindAudio),
			PacketsSent: uint32(s.outAudio.packets),
			BytesSent:   uint64(s.outAudio.bytes),
		},
		"inbound-audio": webrtc.InboundRTPStreamStats{
			ID:               "inbound-audio",
			Type:             webrtc.StatsTypeInboundRTP,
			Timestamp:        ts,
			SSRC:             audioSSRC,
			Kind:             string(webrtc.MediaKindAudio),
			PacketsReceived:  uint32(s.inAudio.packets),
			PacketsLost:      int32(s.inAudio.lost),
			BytesReceived:    uint64(s.inAudio.bytes),
			Jitter:           jitterS,
			AudioLevel:       0.3,
			TotalAudioEnergy: 0.09 * s.inAudio.packets / audioPacketRate,
		},
	}

	if !audioOnly {
		report["outbound-video"] = webrtc.OutboundRTPStreamStats{
			ID:              "outbound-video",
			Type:            webrtc.StatsTypeOutboundRTP,
			Timestamp:       ts,
			SSRC:            videoSSRC,
			Kind:            string(webrtc.MediaKindVideo),
			PacketsSent:     uint32(s.outVideo.packets),
			BytesSent:       uint64(s.outVideo.bytes),
			FramesSent:      uint32(s.outVideo.frames),
			FrameWidth:      uint32(constraints.Width),
			FrameHeight:     uint32(constraints.Height),
			FramesPerSecond: fps,
		}
		report["inbound-video"] = webrtc.InboundRTPStreamStats{
			ID:              "inbound-video",
			Type:            webrtc.StatsTypeInboundRTP,
			Timestamp:       ts,
			SSRC:            videoSSRC,
			Kind:            string(webrtc.MediaKindVideo),
			PacketsReceived: uint32(s.inVideo.packets),
			PacketsLost:     int32(s.inVideo.lost),
			BytesReceived:   uint64(s.inVideo.bytes),
			Jitter:          jitterS,
			FramesReceived:  uint32(s.inVideo.frames),
			FramesDropped:   uint32(s.inVideo.dropped),
			FrameWidth:      uint32(constraints.Width),
			FrameHeight:     uint32(constraints.Height),
		}
	}

	return report
}

func (st *stream) advance(packets, lost, bytes, frames, dropped float64) {
	st.packets += packets
	st.lost += lost
	st.bytes += bytes
	st.frames += frames
	st.dropped += dropped
}

var _ ports.StatsSource = (*Source)(nil)
