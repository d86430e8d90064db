package services

import (
	"testing"
	"time"

	"telemed/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func snapshot(rtt, loss, jitter, bandwidth float64) domain.MetricsSnapshot {
	return domain.MetricsSnapshot{
		Timestamp:             time.Unix(1700000000, 0),
		RoundTripTimeMs:       rtt,
		PacketsSent:           1000,
		PacketsReceived:       1000,
		FrameWidth:            1280,
		FrameHeight:           720,
		FramesPerSecond:       30,
		JitterMs:              jitter,
		PacketLossPercentage:  loss,
		AvailableBandwidthBps: bandwidth,
	}
}

func TestQualityService_OptimalConnection(t *testing.T) {
	qs := NewQualityService(DefaultBandwidthFactor)

	a := qs.Score(snapshot(30, 0, 2, 1e9))

	assert.Equal(t, 100, a.Score)
	assert.Equal(t, domain.QualityExcellent, a.Level)
	assert.Equal(t, RecommendationOptimal, a.Recommendation)
	assert.Equal(t, "1280x720", a.Resolution)
	assert.True(t, a.HasData)
}

func TestQualityService_HighLatency(t *testing.T) {
	qs := NewQualityService(DefaultBandwidthFactor)

	a := qs.Score(snapshot(350, 1, 0, 0))

	assert.Equal(t, 50, a.Score)
	assert.LessOrEqual(t, a.Level.Rank(), domain.QualityFair.Rank())
	assert.Equal(t, RecommendationHighLatency, a.Recommendation)
}

func TestQualityService_Deductions(t *testing.T) {
	qs := NewQualityService(DefaultBandwidthFactor)

	tests := []struct {
		name           string
		snapshot       domain.MetricsSnapshot
		wantScore      int
		wantLevel      domain.QualityLevel
		recommendation string
	}{
		{
			name:           "slight latency",
			snapshot:       snapshot(80, 0, 0, 0),
			wantScore:      90,
			wantLevel:      domain.QualityExcellent,
			recommendation: RecommendationStable,
		},
		{
			name:           "latency above 150ms",
			snapshot:       snapshot(160, 0, 0, 0),
			wantScore:      80,
			wantLevel:      domain.QualityGood,
			recommendation: RecommendationHighLatency,
		},
		{
			name:           "loss warning overrides latency",
			snapshot:       snapshot(160, 3, 0, 0),
			wantScore:      60,
			wantLevel:      domain.QualityFair,
			recommendation: RecommendationPacketLoss,
		},
		{
			name:           "minor loss",
			snapshot:       snapshot(0, 1, 0, 0),
			wantScore:      90,
			wantLevel:      domain.QualityExcellent,
			recommendation: RecommendationStable,
		},
		{
			name:           "heavy jitter",
			snapshot:       snapshot(0, 0, 60, 0),
			wantScore:      85,
			wantLevel:      domain.QualityExcellent,
			recommendation: RecommendationJitter,
		},
		{
			name:           "moderate jitter",
			snapshot:       snapshot(0, 0, 25, 0),
			wantScore:      90,
			wantLevel:      domain.QualityExcellent,
			recommendation: RecommendationStable,
		},
		{
			name:           "everything bad",
			snapshot:       snapshot(400, 10, 60, 0),
			wantScore:      15,
			wantLevel:      domain.QualityDisconnected,
			recommendation: RecommendationDisconnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := qs.Score(tt.snapshot)
			assert.Equal(t, tt.wantScore, a.Score)
			assert.Equal(t, tt.wantLevel, a.Level)
			assert.Equal(t, tt.recommendation, a.Recommendation)
		})
	}
}

func TestQualityService_Bandwidth(t *testing.T) {
	qs := NewQualityService(DefaultBandwidthFactor)

	base := snapshot(0, 0, 0, 0)
	base.FrameWidth, base.FrameHeight, base.FramesPerSecond = 640, 480, 30
	// 640*480*30*0.1
	required := 921600.0
	assert.InDelta(t, required, qs.RequiredBandwidth(base), 0.001)

	tests := []struct {
		name           string
		available      float64
		wantScore      int
		recommendation string
	}{
		{"unknown bandwidth is not penalised", 0, 100, RecommendationOptimal},
		{"plenty", required, 100, RecommendationOptimal},
		{"below 80 percent", required * 0.7, 90, RecommendationStable},
		{"below 50 percent", required * 0.4, 85, RecommendationLowBandwidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			s.AvailableBandwidthBps = tt.available
			a := qs.Score(s)
			assert.Equal(t, tt.wantScore, a.Score)
			assert.Equal(t, tt.recommendation, a.Recommendation)
		})
	}
}

func TestQualityService_UnknownResolutionSkipsBandwidth(t *testing.T) {
	qs := NewQualityService(DefaultBandwidthFactor)

	s := snapshot(0, 0, 0, 1)
	s.FrameWidth, s.FrameHeight, s.FramesPerSecond = 0, 0, 0

	a := qs.Score(s)
	assert.Equal(t, 100, a.Score)
	assert.Equal(t, "0x0", a.Resolution)
}

func TestQualityService_NoData(t *testing.T) {
	qs := NewQualityService(0)

	a := qs.Score(domain.NewMetricsSnapshot(domain.RawStats{}, time.Now()))

	assert.False(t, a.HasData)
	assert.Equal(t, 70, a.Score)
	assert.Equal(t, domain.QualityGood, a.Level)
	assert.Equal(t, RecommendationGatheringSample, a.Recommendation)
}

func TestLevelOf_Monotonic(t *testing.T) {
	for s1 := -10; s1 <= 110; s1++ {
		for s2 := s1; s2 <= 110; s2++ {
			if LevelOf(s1).Rank() > LevelOf(s2).Rank() {
				t.Fatalf("LevelOf(%d)=%s ranks above LevelOf(%d)=%s", s1, LevelOf(s1), s2, LevelOf(s2))
			}
		}
	}

	assert.Equal(t, domain.QualityExcellent, LevelOf(85))
	assert.Equal(t, domain.QualityGood, LevelOf(84))
	assert.Equal(t, domain.QualityGood, LevelOf(70))
	assert.Equal(t, domain.QualityFair, LevelOf(50))
	assert.Equal(t, domain.QualityPoor, LevelOf(30))
	assert.Equal(t, domain.QualityDisconnected, LevelOf(29))
}

func TestQualityService_ScoreNeverLeavesRange(t *testing.T) {
	qs := NewQualityService(DefaultBandwidthFactor)

	for _, rtt := range []float64{0, 40, 120, 200, 500, 5000} {
		for _, loss := range []float64{0, 0.6, 3, 10, 100} {
			for _, jitter := range []float64{0, 15, 30, 100} {
				for _, bw := range []float64{0, 1, 1e9} {
					a := qs.Score(snapshot(rtt, loss, jitter, bw))
					if a.Score < 0 || a.Score > 100 {
						t.Fatalf("score %d out of range for rtt=%v loss=%v jitter=%v bw=%v", a.Score, rtt, loss, jitter, bw)
					}
					assert.Equal(t, LevelOf(a.Score), a.Level)
				}
			}
		}
	}
}
