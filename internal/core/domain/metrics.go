package domain

import "time"

// RawStats holds the per-field totals accumulated from one statistics report
// before defaults and derived values are applied.
type RawStats struct {
	RoundTripTimeMs       float64
	PacketsLost           int64
	PacketsSent           int64
	PacketsReceived       int64
	BytesSent             int64
	BytesReceived         int64
	FramesSent            int64
	FramesReceived        int64
	FramesDropped         int64
	FrameWidth            int
	FrameHeight           int
	FramesPerSecond       float64
	AudioLevel            float64
	TotalAudioEnergy      float64
	JitterMs              float64
	AvailableBandwidthBps float64
}

// MetricsSnapshot is a normalized view of one statistics poll.
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	RoundTripTimeMs float64 `json:"round_trip_time_ms"`

	PacketsLost     uint64 `json:"packets_lost"`
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsReceived uint64 `json:"packets_received"`
	BytesSent       uint64 `json:"bytes_sent"`
	BytesReceived   uint64 `json:"bytes_received"`
	FramesSent      uint64 `json:"frames_sent"`
	FramesReceived  uint64 `json:"frames_received"`
	FramesDropped   uint64 `json:"frames_dropped"`

	FrameWidth      int     `json:"frame_width"`
	FrameHeight     int     `json:"frame_height"`
	FramesPerSecond float64 `json:"frames_per_second"`

	AudioLevel       float64 `json:"audio_level"`
	TotalAudioEnergy float64 `json:"total_audio_energy"`

	JitterMs              float64 `json:"jitter_ms"`
	PacketLossPercentage  float64 `json:"packet_loss_percentage"`
	AvailableBandwidthBps float64 `json:"available_bandwidth_bps"`
}

// NewMetricsSnapshot applies defaults and derivations exactly once. Negative
// counters are clamped to zero and the loss percentage to [0,100].
func NewMetricsSnapshot(raw RawStats, at time.Time) MetricsSnapshot {
	s := MetricsSnapshot{
		Timestamp:             at,
		RoundTripTimeMs:       nonNegative(raw.RoundTripTimeMs),
		PacketsLost:           counter(raw.PacketsLost),
		PacketsSent:           counter(raw.PacketsSent),
		PacketsReceived:       counter(raw.PacketsReceived),
		BytesSent:             counter(raw.BytesSent),
		BytesReceived:         counter(raw.BytesReceived),
		FramesSent:            counter(raw.FramesSent),
		FramesReceived:        counter(raw.FramesReceived),
		FramesDropped:         counter(raw.FramesDropped),
		FrameWidth:            maxInt(raw.FrameWidth, 0),
		FrameHeight:           maxInt(raw.FrameHeight, 0),
		FramesPerSecond:       nonNegative(raw.FramesPerSecond),
		AudioLevel:            clamp(raw.AudioLevel, 0, 1),
		TotalAudioEnergy:      nonNegative(raw.TotalAudioEnergy),
		JitterMs:              nonNegative(raw.JitterMs),
		AvailableBandwidthBps: nonNegative(raw.AvailableBandwidthBps),
	}

	denominator := s.PacketsSent + s.PacketsLost
	if denominator > 0 {
		s.PacketLossPercentage = clamp(float64(s.PacketsLost)/float64(denominator)*100, 0, 100)
	}

	return s
}

// HasSamples reports whether the snapshot carries any real measurement.
func (s MetricsSnapshot) HasSamples() bool {
	return s.RoundTripTimeMs > 0 ||
		s.PacketsSent > 0 ||
		s.PacketsReceived > 0 ||
		s.PacketsLost > 0
}

// Pixels returns the pixel count of the current resolution.
func (s MetricsSnapshot) Pixels() int {
	return s.FrameWidth * s.FrameHeight
}

func counter(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
