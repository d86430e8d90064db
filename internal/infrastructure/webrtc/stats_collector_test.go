package webrtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"telemed/internal/core/domain"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	mu     sync.Mutex
	state  webrtc.PeerConnectionState
	report webrtc.StatsReport
	panics bool

	// when set, GetStats signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSource) GetStats() webrtc.StatsReport {
	f.mu.Lock()
	report, panics, entered, release := f.report, f.panics, f.entered, f.release
	f.mu.Unlock()

	if panics {
		panic("stats engine crashed")
	}
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return report
}

func (f *fakeSource) ConnectionState() webrtc.PeerConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func connectedSource() *fakeSource {
	return &fakeSource{
		state: webrtc.PeerConnectionStateConnected,
		report: webrtc.StatsReport{
			"pair": webrtc.ICECandidatePairStats{
				Nominated:                true,
				State:                    webrtc.StatsICECandidatePairStateSucceeded,
				CurrentRoundTripTime:     0.03,
				AvailableOutgoingBitrate: 5_000_000,
			},
			"out-video": webrtc.OutboundRTPStreamStats{
				Kind:            "video",
				PacketsSent:     1000,
				FrameWidth:      1280,
				FrameHeight:     720,
				FramesPerSecond: 30,
			},
		},
	}
}

func fullReport() webrtc.StatsReport {
	return webrtc.StatsReport{
		"pair-selected": webrtc.ICECandidatePairStats{
			Nominated:                true,
			State:                    webrtc.StatsICECandidatePairStateSucceeded,
			CurrentRoundTripTime:     0.08,
			AvailableOutgoingBitrate: 2_000_000,
		},
		"pair-backup": webrtc.ICECandidatePairStats{
			Nominated:                false,
			State:                    webrtc.StatsICECandidatePairStateSucceeded,
			CurrentRoundTripTime:     0.5,
			AvailableOutgoingBitrate: 10,
		},
		"pair-failed": webrtc.ICECandidatePairStats{
			Nominated:            true,
			State:                webrtc.StatsICECandidatePairStateFailed,
			CurrentRoundTripTime: 0.9,
		},
		"in-video": webrtc.InboundRTPStreamStats{
			Kind:            "video",
			PacketsReceived: 900,
			PacketsLost:     10,
			Jitter:          0.012,
			FramesReceived:  300,
			FramesDropped:   3,
			FrameWidth:      640,
			FrameHeight:     480,
		},
		"in-audio": webrtc.InboundRTPStreamStats{
			Kind:             "audio",
			PacketsReceived:  500,
			Jitter:           0.02,
			AudioLevel:       0.3,
			TotalAudioEnergy: 1.5,
		},
		"out-video": webrtc.OutboundRTPStreamStats{
			Kind:            "video",
			PacketsSent:     1000,
			BytesSent:       1_000_000,
			FramesSent:      600,
			FrameWidth:      1280,
			FrameHeight:     720,
			FramesPerSecond: 30,
		},
		"out-audio": webrtc.OutboundRTPStreamStats{
			Kind:        "audio",
			PacketsSent: 500,
			BytesSent:   50_000,
		},
		"remote-in": webrtc.RemoteInboundRTPStreamStats{
			Kind:        "video",
			PacketsLost: 15,
		},
	}
}

func TestAggregate(t *testing.T) {
	raw := Aggregate(fullReport())

	assert.InDelta(t, 80, raw.RoundTripTimeMs, 1e-9)
	assert.Equal(t, 2_000_000.0, raw.AvailableBandwidthBps)
	assert.Equal(t, int64(1400), raw.PacketsReceived)
	assert.Equal(t, int64(25), raw.PacketsLost)
	assert.Equal(t, int64(1500), raw.PacketsSent)
	assert.Equal(t, int64(1_050_000), raw.BytesSent)
	assert.Equal(t, int64(600), raw.FramesSent)
	assert.Equal(t, int64(300), raw.FramesReceived)
	assert.Equal(t, int64(3), raw.FramesDropped)
	assert.Equal(t, 1280, raw.FrameWidth)
	assert.Equal(t, 720, raw.FrameHeight)
	assert.Equal(t, 30.0, raw.FramesPerSecond)
	assert.InDelta(t, 20, raw.JitterMs, 1e-9)
	assert.Equal(t, 0.3, raw.AudioLevel)
	assert.Equal(t, 1.5, raw.TotalAudioEnergy)
}

func TestAggregate_InboundResolutionWithoutOutboundVideo(t *testing.T) {
	report := fullReport()
	delete(report, "out-video")

	raw := Aggregate(report)
	assert.Equal(t, 640, raw.FrameWidth)
	assert.Equal(t, 480, raw.FrameHeight)
}

func TestAggregate_IncomingBitrateFallbackAndPointers(t *testing.T) {
	report := webrtc.StatsReport{
		"pair": &webrtc.ICECandidatePairStats{
			Nominated:                true,
			State:                    webrtc.StatsICECandidatePairStateSucceeded,
			CurrentRoundTripTime:     0.1,
			AvailableIncomingBitrate: 750_000,
		},
		"in": &webrtc.InboundRTPStreamStats{Kind: "video", PacketsReceived: 10},
	}

	raw := Aggregate(report)
	assert.InDelta(t, 100, raw.RoundTripTimeMs, 1e-9)
	assert.Equal(t, 750_000.0, raw.AvailableBandwidthBps)
	assert.Equal(t, int64(10), raw.PacketsReceived)
}

func TestAggregate_NoSelectedPair(t *testing.T) {
	report := fullReport()
	delete(report, "pair-selected")

	raw := Aggregate(report)
	assert.Zero(t, raw.RoundTripTimeMs)
	assert.Zero(t, raw.AvailableBandwidthBps)
}

func TestStatsCollector_Collect(t *testing.T) {
	clk := clock.NewMock()
	source := connectedSource()
	source.report = fullReport()
	collector := NewStatsCollector(source, clk, time.Second, zaptest.NewLogger(t).Sugar())

	snapshot, ok := collector.Collect(context.Background())
	require.True(t, ok)
	assert.Equal(t, clk.Now(), snapshot.Timestamp)
	assert.InDelta(t, 80, snapshot.RoundTripTimeMs, 1e-9)
	// 25 lost of 1500 sent + 25 lost
	assert.InDelta(t, 25.0/1525.0*100, snapshot.PacketLossPercentage, 1e-9)
}

func TestStatsCollector_CollectRejects(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	t.Run("nil source", func(t *testing.T) {
		collector := NewStatsCollector(nil, clock.NewMock(), time.Second, logger)
		_, ok := collector.Collect(context.Background())
		assert.False(t, ok)
	})

	t.Run("not connected", func(t *testing.T) {
		source := connectedSource()
		source.state = webrtc.PeerConnectionStateConnecting
		collector := NewStatsCollector(source, clock.NewMock(), time.Second, logger)
		_, ok := collector.Collect(context.Background())
		assert.False(t, ok)
	})

	t.Run("stats panic", func(t *testing.T) {
		source := connectedSource()
		source.panics = true
		collector := NewStatsCollector(source, clock.NewMock(), time.Second, logger)
		_, ok := collector.Collect(context.Background())
		assert.False(t, ok)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		collector := NewStatsCollector(connectedSource(), clock.NewMock(), time.Second, logger)
		_, ok := collector.Collect(ctx)
		assert.False(t, ok)
	})
}

func TestStatsCollector_RealPeerConnectionNotConnected(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()

	collector := NewStatsCollector(pc, clock.NewMock(), time.Second, zaptest.NewLogger(t).Sugar())
	_, ok := collector.Collect(context.Background())
	assert.False(t, ok)
}

func TestStatsCollector_StartDeliversOnTick(t *testing.T) {
	clk := clock.NewMock()
	collector := NewStatsCollector(connectedSource(), clk, time.Second, zaptest.NewLogger(t).Sugar())

	snapshots := make(chan domain.MetricsSnapshot, 4)
	collector.Start(context.Background(), func(_ context.Context, s domain.MetricsSnapshot) {
		snapshots <- s
	})
	defer collector.Stop()
	require.True(t, collector.IsRunning())

	_, ok := collector.Previous()
	assert.False(t, ok)

	clk.Add(time.Second)

	select {
	case s := <-snapshots:
		assert.InDelta(t, 30, s.RoundTripTimeMs, 1e-9)
		prev, ok := collector.Previous()
		require.True(t, ok)
		assert.Equal(t, s, prev)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestStatsCollector_StopDiscardsInFlightResult(t *testing.T) {
	clk := clock.NewMock()
	source := connectedSource()
	source.entered = make(chan struct{})
	source.release = make(chan struct{})
	collector := NewStatsCollector(source, clk, time.Second, zaptest.NewLogger(t).Sugar())

	var mu sync.Mutex
	delivered := 0
	collector.Start(context.Background(), func(context.Context, domain.MetricsSnapshot) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	clk.Add(time.Second)
	<-source.entered

	collector.Stop()
	assert.False(t, collector.IsRunning())
	close(source.release)

	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered > 0
	}, 200*time.Millisecond, 10*time.Millisecond)

	_, ok := collector.Previous()
	assert.False(t, ok)
}

func TestStatsCollector_StartIsIdempotent(t *testing.T) {
	collector := NewStatsCollector(nil, clock.NewMock(), time.Second, zaptest.NewLogger(t).Sugar())
	collector.Start(context.Background(), nil)
	assert.False(t, collector.IsRunning())

	collector = NewStatsCollector(connectedSource(), clock.NewMock(), time.Second, zaptest.NewLogger(t).Sugar())
	collector.Start(context.Background(), nil)
	collector.Start(context.Background(), nil)
	assert.True(t, collector.IsRunning())
	collector.Stop()
	collector.Stop()
	assert.False(t, collector.IsRunning())
}
