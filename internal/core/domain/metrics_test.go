package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMetricsSnapshot_Derivations(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tests := []struct {
		name     string
		raw      RawStats
		wantLoss float64
		hasData  bool
	}{
		{
			name:     "empty report",
			raw:      RawStats{},
			wantLoss: 0,
			hasData:  false,
		},
		{
			name:     "loss over sent plus lost",
			raw:      RawStats{PacketsSent: 95, PacketsLost: 5, RoundTripTimeMs: 20},
			wantLoss: 5,
			hasData:  true,
		},
		{
			name:     "negative counters are clamped",
			raw:      RawStats{PacketsSent: -10, PacketsLost: -3, PacketsReceived: 7},
			wantLoss: 0,
			hasData:  true,
		},
		{
			name:     "only lost packets",
			raw:      RawStats{PacketsLost: 4},
			wantLoss: 100,
			hasData:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMetricsSnapshot(tt.raw, at)
			assert.InDelta(t, tt.wantLoss, s.PacketLossPercentage, 1e-9)
			assert.Equal(t, tt.hasData, s.HasSamples())
			assert.Equal(t, at, s.Timestamp)
		})
	}
}

func TestNewMetricsSnapshot_Clamps(t *testing.T) {
	s := NewMetricsSnapshot(RawStats{
		RoundTripTimeMs:       -1,
		FrameWidth:            -640,
		FrameHeight:           480,
		AudioLevel:            3,
		JitterMs:              -2,
		AvailableBandwidthBps: -100,
	}, time.Now())

	assert.Zero(t, s.RoundTripTimeMs)
	assert.Zero(t, s.FrameWidth)
	assert.Zero(t, s.Pixels())
	assert.Equal(t, 1.0, s.AudioLevel)
	assert.Zero(t, s.JitterMs)
	assert.Zero(t, s.AvailableBandwidthBps)
}

func TestQualityLevel_Rank(t *testing.T) {
	assert.Equal(t, 0, QualityDisconnected.Rank())
	assert.Equal(t, 4, QualityExcellent.Rank())
	assert.Less(t, QualityFair.Rank(), QualityGood.Rank())
	assert.Equal(t, -1, QualityLevel("unknown").Rank())
	assert.Equal(t, "640x480", FormatResolution(640, 480))
}
