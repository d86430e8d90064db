package domain

import (
	"fmt"
	"time"
)

// QualityLevel is the categorical connection health derived from a score.
type QualityLevel string

const (
	QualityExcellent    QualityLevel = "excellent"
	QualityGood         QualityLevel = "good"
	QualityFair         QualityLevel = "fair"
	QualityPoor         QualityLevel = "poor"
	QualityDisconnected QualityLevel = "disconnected"
)

// QualityLevels lists levels from worst to best.
var QualityLevels = []QualityLevel{
	QualityDisconnected,
	QualityPoor,
	QualityFair,
	QualityGood,
	QualityExcellent,
}

// Rank orders levels: disconnected=0 ... excellent=4. Unknown levels rank -1.
func (l QualityLevel) Rank() int {
	for i, level := range QualityLevels {
		if level == l {
			return i
		}
	}
	return -1
}

// QualityAssessment is the scored read model recomputed on every poll.
type QualityAssessment struct {
	Level          QualityLevel `json:"level"`
	Score          int          `json:"score"`
	RTT            float64      `json:"rtt"`
	PacketLoss     float64      `json:"packet_loss"`
	Bandwidth      float64      `json:"bandwidth"`
	FPS            float64      `json:"fps"`
	Jitter         float64      `json:"jitter"`
	Resolution     string       `json:"resolution"`
	Recommendation string       `json:"recommendation"`
	HasData        bool         `json:"has_data"`
	Timestamp      time.Time    `json:"timestamp"`
}

// FormatResolution renders a resolution as "WxH".
func FormatResolution(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}
