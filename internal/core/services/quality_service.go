package services

import (
	"telemed/internal/core/domain"
)

const (
	// DefaultBandwidthFactor estimates the bits per second needed per pixel per
	// frame. It is an empirical proxy; only the available-vs-required
	// comparison matters.
	DefaultBandwidthFactor = 0.1

	RecommendationOptimal         = "Connection is optimal"
	RecommendationStable          = "Connection is stable"
	RecommendationHighLatency     = "High latency detected, consider moving closer to your router"
	RecommendationPacketLoss      = "Packet loss detected, video quality may be reduced"
	RecommendationJitter          = "Unstable network timing, audio may sound choppy"
	RecommendationLowBandwidth    = "Limited bandwidth, video resolution may be reduced"
	RecommendationDisconnected    = "Connection is very poor, check your internet connection or try rejoining the call"
	RecommendationGatheringSample = "Gathering connection statistics"

	noDataScore = 70
)

type deduction struct {
	over   float64
	points int
}

var (
	rttDeductions = []deduction{{300, 40}, {150, 20}, {50, 10}}
	// packet loss in percent
	lossDeductions   = []deduction{{5, 30}, {2, 20}, {0.5, 10}}
	jitterDeductions = []deduction{{50, 15}, {20, 10}, {10, 5}}
)

// QualityService converts metrics snapshots into quality assessments.
type QualityService struct {
	bandwidthFactor float64
}

func NewQualityService(bandwidthFactor float64) *QualityService {
	if bandwidthFactor <= 0 {
		bandwidthFactor = DefaultBandwidthFactor
	}
	return &QualityService{bandwidthFactor: bandwidthFactor}
}

// LevelOf maps a score to its level. The mapping is monotonic.
func LevelOf(score int) domain.QualityLevel {
	switch {
	case score >= 85:
		return domain.QualityExcellent
	case score >= 70:
		return domain.QualityGood
	case score >= 50:
		return domain.QualityFair
	case score >= 30:
		return domain.QualityPoor
	default:
		return domain.QualityDisconnected
	}
}

// RequiredBandwidth returns the estimated bits per second needed for the
// snapshot's resolution and frame rate, or 0 if unknown.
func (qs *QualityService) RequiredBandwidth(s domain.MetricsSnapshot) float64 {
	return float64(s.Pixels()) * s.FramesPerSecond * qs.bandwidthFactor
}

// Score applies weighted deductions to a perfect score of 100.
func (qs *QualityService) Score(s domain.MetricsSnapshot) domain.QualityAssessment {
	assessment := domain.QualityAssessment{
		RTT:        s.RoundTripTimeMs,
		PacketLoss: s.PacketLossPercentage,
		Bandwidth:  s.AvailableBandwidthBps,
		FPS:        s.FramesPerSecond,
		Jitter:     s.JitterMs,
		Resolution: domain.FormatResolution(s.FrameWidth, s.FrameHeight),
		HasData:    s.HasSamples(),
		Timestamp:  s.Timestamp,
	}

	// No samples yet: report a neutral reading instead of a false "optimal".
	if !assessment.HasData {
		assessment.Score = noDataScore
		assessment.Level = LevelOf(noDataScore)
		assessment.Recommendation = RecommendationGatheringSample
		return assessment
	}

	score := 100
	recommendation := ""

	score -= deduct(s.RoundTripTimeMs, rttDeductions)
	if s.RoundTripTimeMs > 150 {
		recommendation = RecommendationHighLatency
	}

	score -= deduct(s.PacketLossPercentage, lossDeductions)
	if s.PacketLossPercentage > 2 {
		recommendation = RecommendationPacketLoss
	}

	score -= deduct(s.JitterMs, jitterDeductions)
	if s.JitterMs > 50 && recommendation == "" {
		recommendation = RecommendationJitter
	}

	required := qs.RequiredBandwidth(s)
	if required > 0 && s.AvailableBandwidthBps > 0 {
		switch {
		case s.AvailableBandwidthBps < required*0.5:
			score -= 15
			if recommendation == "" {
				recommendation = RecommendationLowBandwidth
			}
		case s.AvailableBandwidthBps < required*0.8:
			score -= 10
		}
	}

	if score < 0 {
		score = 0
	}
	if recommendation == "" {
		recommendation = RecommendationStable
	}

	level := LevelOf(score)
	switch {
	case level == domain.QualityExcellent && score == 100:
		recommendation = RecommendationOptimal
	case level == domain.QualityDisconnected:
		recommendation = RecommendationDisconnected
	}

	assessment.Score = score
	assessment.Level = level
	assessment.Recommendation = recommendation
	return assessment
}

func deduct(value float64, table []deduction) int {
	for _, d := range table {
		if value > d.over {
			return d.points
		}
	}
	return 0
}
