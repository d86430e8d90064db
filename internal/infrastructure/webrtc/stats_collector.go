package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

const (
	// DefaultAdaptiveInterval drives the adaptation monitor.
	DefaultAdaptiveInterval = time.Second
	// DefaultDiagnosticInterval drives the diagnostic monitor.
	DefaultDiagnosticInterval = 2 * time.Second
)

// StatsCollector polls a StatsSource on a ticker and turns each report into a
// normalized snapshot.
type StatsCollector struct {
	source   ports.StatsSource
	clock    clock.Clock
	interval time.Duration
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	running    bool
	generation uint64
	seq        uint64
	delivered  uint64
	previous   *domain.MetricsSnapshot
	cancel     context.CancelFunc
}

func NewStatsCollector(source ports.StatsSource, clk clock.Clock, interval time.Duration, logger *zap.SugaredLogger) *StatsCollector {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultAdaptiveInterval
	}
	return &StatsCollector{
		source:   source,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// Collect takes one snapshot. It reports false when the source is missing,
// not connected, or stats retrieval failed.
func (c *StatsCollector) Collect(ctx context.Context) (domain.MetricsSnapshot, bool) {
	if c.source == nil {
		return domain.MetricsSnapshot{}, false
	}
	if ctx.Err() != nil {
		return domain.MetricsSnapshot{}, false
	}

	if state := c.source.ConnectionState(); state != webrtc.PeerConnectionStateConnected {
		c.logger.Debugw("skipping stats poll", "connection_state", state.String())
		return domain.MetricsSnapshot{}, false
	}

	report, err := c.getStats()
	if err != nil {
		c.logger.Warnw("failed to collect webrtc stats", "error", err)
		return domain.MetricsSnapshot{}, false
	}

	return domain.NewMetricsSnapshot(Aggregate(report), c.clock.Now()), true
}

func (c *StatsCollector) getStats() (report webrtc.StatsReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("get stats panicked: %v", r)
		}
	}()
	return c.source.GetStats(), nil
}

// Start begins polling every interval. Each delivered snapshot is newer than
// the one before it. Start on a nil source or while running is a no-op.
func (c *StatsCollector) Start(ctx context.Context, onSnapshot func(ctx context.Context, snapshot domain.MetricsSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == nil || c.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.generation++
	c.cancel = cancel

	ticker := c.clock.Ticker(c.interval)
	go c.run(ctx, ticker, c.generation, onSnapshot)
}

// Stop halts polling. A tick already in progress may finish but its result is
// dropped.
func (c *StatsCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false
	c.generation++
	c.cancel()
	c.cancel = nil
}

func (c *StatsCollector) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Previous returns the last delivered snapshot.
func (c *StatsCollector) Previous() (domain.MetricsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.previous == nil {
		return domain.MetricsSnapshot{}, false
	}
	return *c.previous, true
}

func (c *StatsCollector) run(ctx context.Context, ticker *clock.Ticker, generation uint64, onSnapshot func(context.Context, domain.MetricsSnapshot)) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx, generation, onSnapshot)
		}
	}
}

func (c *StatsCollector) tick(ctx context.Context, generation uint64, onSnapshot func(context.Context, domain.MetricsSnapshot)) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("stats poll panicked", "panic", r)
		}
	}()

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	snapshot, ok := c.Collect(ctx)
	if !ok {
		return
	}

	c.mu.Lock()
	if !c.running || c.generation != generation || seq <= c.delivered {
		c.mu.Unlock()
		c.logger.Debugw("discarding stale stats snapshot", "seq", seq)
		return
	}
	c.delivered = seq
	c.previous = &snapshot
	c.mu.Unlock()

	if onSnapshot != nil {
		onSnapshot(ctx, snapshot)
	}
}

// Aggregate folds a stats report into raw per-field totals. Only the
// nominated, succeeded candidate pair contributes RTT and bandwidth.
func Aggregate(report webrtc.StatsReport) domain.RawStats {
	var (
		raw            domain.RawStats
		outWidth       int
		outHeight      int
		inWidth        int
		inHeight       int
		haveOutbound   bool
		inboundJitterS float64
	)

	for _, s := range report {
		switch st := s.(type) {
		case webrtc.ICECandidatePairStats:
			applyCandidatePair(&raw, st)
		case *webrtc.ICECandidatePairStats:
			if st != nil {
				applyCandidatePair(&raw, *st)
			}
		case webrtc.InboundRTPStreamStats:
			applyInbound(&raw, st, &inWidth, &inHeight, &inboundJitterS)
		case *webrtc.InboundRTPStreamStats:
			if st != nil {
				applyInbound(&raw, *st, &inWidth, &inHeight, &inboundJitterS)
			}
		case webrtc.OutboundRTPStreamStats:
			haveOutbound = applyOutbound(&raw, st, &outWidth, &outHeight) || haveOutbound
		case *webrtc.OutboundRTPStreamStats:
			if st != nil {
				haveOutbound = applyOutbound(&raw, *st, &outWidth, &outHeight) || haveOutbound
			}
		case webrtc.RemoteInboundRTPStreamStats:
			raw.PacketsLost += int64(st.PacketsLost)
		case *webrtc.RemoteInboundRTPStreamStats:
			if st != nil {
				raw.PacketsLost += int64(st.PacketsLost)
			}
		}
	}

	if haveOutbound {
		raw.FrameWidth, raw.FrameHeight = outWidth, outHeight
	} else {
		raw.FrameWidth, raw.FrameHeight = inWidth, inHeight
	}
	raw.JitterMs = inboundJitterS * 1000

	return raw
}

func applyCandidatePair(raw *domain.RawStats, st webrtc.ICECandidatePairStats) {
	if !st.Nominated || st.State != webrtc.StatsICECandidatePairStateSucceeded {
		return
	}
	raw.RoundTripTimeMs = st.CurrentRoundTripTime * 1000
	raw.AvailableBandwidthBps = st.AvailableOutgoingBitrate
	if raw.AvailableBandwidthBps == 0 {
		raw.AvailableBandwidthBps = st.AvailableIncomingBitrate
	}
}

func applyInbound(raw *domain.RawStats, st webrtc.InboundRTPStreamStats, width, height *int, jitterS *float64) {
	raw.PacketsReceived += int64(st.PacketsReceived)
	raw.PacketsLost += int64(st.PacketsLost)
	raw.BytesReceived += int64(st.BytesReceived)
	if st.Jitter > *jitterS {
		*jitterS = st.Jitter
	}

	switch st.Kind {
	case string(webrtc.MediaKindVideo):
		raw.FramesReceived += int64(st.FramesReceived)
		raw.FramesDropped += int64(st.FramesDropped)
		setLargest(width, height, int(st.FrameWidth), int(st.FrameHeight))
	case string(webrtc.MediaKindAudio):
		if st.AudioLevel > raw.AudioLevel {
			raw.AudioLevel = st.AudioLevel
		}
		raw.TotalAudioEnergy += st.TotalAudioEnergy
	}
}

// applyOutbound reports whether the stream was a video stream.
func applyOutbound(raw *domain.RawStats, st webrtc.OutboundRTPStreamStats, width, height *int) bool {
	raw.PacketsSent += int64(st.PacketsSent)
	raw.BytesSent += int64(st.BytesSent)

	if st.Kind != string(webrtc.MediaKindVideo) {
		return false
	}
	raw.FramesSent += int64(st.FramesSent)
	setLargest(width, height, int(st.FrameWidth), int(st.FrameHeight))
	if st.FramesPerSecond > raw.FramesPerSecond {
		raw.FramesPerSecond = st.FramesPerSecond
	}
	return true
}

// setLargest keeps the largest resolution seen across streams.
func setLargest(width, height *int, w, h int) {
	if w*h > (*width)*(*height) {
		*width, *height = w, h
	}
}

var _ ports.MetricsCollector = (*StatsCollector)(nil)
