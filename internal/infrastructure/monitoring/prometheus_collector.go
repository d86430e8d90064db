package monitoring

import (
	"telemed/internal/core/domain"
	"telemed/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// levelRank maps adaptation levels onto a gauge: higher is better.
var levelRank = map[domain.AdaptationLevel]float64{
	domain.LevelAudioOnly: 0,
	domain.LevelLow:       1,
	domain.LevelMedium:    2,
	domain.LevelHigh:      3,
	domain.LevelMax:       4,
}

// PrometheusCollector exports assessments and adaptations. It is registered
// on every monitor as a QualityObserver.
type PrometheusCollector struct {
	sessionsMonitored prometheus.Gauge

	assessmentsTotal *prometheus.CounterVec
	adaptationsTotal *prometheus.CounterVec

	roundTripTime prometheus.Histogram

	qualityScore    *prometheus.GaugeVec
	packetLoss      *prometheus.GaugeVec
	bandwidth       *prometheus.GaugeVec
	adaptationLevel *prometheus.GaugeVec
}

var _ ports.QualityObserver = (*PrometheusCollector)(nil)

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		sessionsMonitored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telemed_sessions_monitored",
			Help: "Number of sessions with a registered quality monitor",
		}),

		assessmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_quality_assessments_total",
			Help: "Quality assessments produced, by quality level",
		}, []string{"level"}),

		adaptationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_adaptations_total",
			Help: "Completed adaptation level changes",
		}, []string{"from", "to"}),

		roundTripTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemed_round_trip_time_seconds",
			Help:    "Round-trip time reported by the selected candidate pair",
			Buckets: []float64{0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1},
		}),

		qualityScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemed_quality_score",
			Help: "Latest quality score per session (0-100)",
		}, []string{"session_id"}),

		packetLoss: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemed_packet_loss_percent",
			Help: "Latest packet loss percentage per session",
		}, []string{"session_id"}),

		bandwidth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemed_available_bandwidth_bps",
			Help: "Latest available outgoing bandwidth per session",
		}, []string{"session_id"}),

		adaptationLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemed_adaptation_level",
			Help: "Current adaptation level per session (4=max, 0=audio-only)",
		}, []string{"session_id"}),
	}
}

func (p *PrometheusCollector) RecordSessionStarted(sessionID domain.SessionID) {
	p.sessionsMonitored.Inc()
}

// RecordSessionEnded drops the per-session series.
func (p *PrometheusCollector) RecordSessionEnded(sessionID domain.SessionID) {
	p.sessionsMonitored.Dec()

	id := string(sessionID)
	p.qualityScore.DeleteLabelValues(id)
	p.packetLoss.DeleteLabelValues(id)
	p.bandwidth.DeleteLabelValues(id)
	p.adaptationLevel.DeleteLabelValues(id)
}

func (p *PrometheusCollector) OnAssessment(sessionID domain.SessionID, assessment domain.QualityAssessment) {
	p.assessmentsTotal.WithLabelValues(string(assessment.Level)).Inc()

	id := string(sessionID)
	p.qualityScore.WithLabelValues(id).Set(float64(assessment.Score))
	if !assessment.HasData {
		return
	}
	p.packetLoss.WithLabelValues(id).Set(assessment.PacketLoss)
	p.bandwidth.WithLabelValues(id).Set(assessment.Bandwidth)
	if assessment.RTT > 0 {
		p.roundTripTime.Observe(assessment.RTT / 1000)
	}
}

func (p *PrometheusCollector) OnAdaptation(sessionID domain.SessionID, entry domain.AdaptationEntry, state domain.AdaptationState) {
	p.adaptationsTotal.WithLabelValues(string(entry.From), string(entry.To)).Inc()
	p.adaptationLevel.WithLabelValues(string(sessionID)).Set(levelRank[state.Level])
}
