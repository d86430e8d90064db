package domain

import (
	"fmt"
	"time"
)

// AdaptationLevel names a video constraint tier or the audio-only fallback.
type AdaptationLevel string

const (
	LevelMax       AdaptationLevel = "max"
	LevelHigh      AdaptationLevel = "high"
	LevelMedium    AdaptationLevel = "medium"
	LevelLow       AdaptationLevel = "low"
	LevelAudioOnly AdaptationLevel = "audio-only"
)

// VideoLevels lists the video tiers from best to worst.
var VideoLevels = []AdaptationLevel{LevelMax, LevelHigh, LevelMedium, LevelLow}

// ParseAdaptationLevel validates a level name.
func ParseAdaptationLevel(s string) (AdaptationLevel, error) {
	switch level := AdaptationLevel(s); level {
	case LevelMax, LevelHigh, LevelMedium, LevelLow, LevelAudioOnly:
		return level, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// IsVideo reports whether the level carries video constraints.
func (l AdaptationLevel) IsVideo() bool {
	return l == LevelMax || l == LevelHigh || l == LevelMedium || l == LevelLow
}

// VideoConstraints is the resolution and frame rate requested for a tier.
type VideoConstraints struct {
	Width     int `json:"width" yaml:"width"`
	Height    int `json:"height" yaml:"height"`
	FrameRate int `json:"frame_rate" yaml:"frame_rate"`
}

func (c VideoConstraints) String() string {
	return fmt.Sprintf("%dx%d@%d", c.Width, c.Height, c.FrameRate)
}

// Pixels returns the pixel count of the constraint.
func (c VideoConstraints) Pixels() int {
	return c.Width * c.Height
}

// QualityPresets maps every video tier to its constraints.
type QualityPresets map[AdaptationLevel]VideoConstraints

// DefaultQualityPresets returns the four fixed video tiers.
func DefaultQualityPresets() QualityPresets {
	return QualityPresets{
		LevelMax:    {Width: 1280, Height: 720, FrameRate: 30},
		LevelHigh:   {Width: 960, Height: 540, FrameRate: 30},
		LevelMedium: {Width: 640, Height: 480, FrameRate: 24},
		LevelLow:    {Width: 320, Height: 240, FrameRate: 15},
	}
}

// Validate checks that all tiers exist and are strictly ordered by pixel
// count and non-increasing frame rate from max down to low.
func (p QualityPresets) Validate() error {
	for _, level := range VideoLevels {
		c, ok := p[level]
		if !ok {
			return fmt.Errorf("preset %q is missing", level)
		}
		if c.Width <= 0 || c.Height <= 0 || c.FrameRate <= 0 {
			return fmt.Errorf("preset %q must have positive dimensions and frame rate", level)
		}
	}
	for i := 1; i < len(VideoLevels); i++ {
		better, worse := p[VideoLevels[i-1]], p[VideoLevels[i]]
		if worse.Pixels() >= better.Pixels() {
			return fmt.Errorf("preset %q must have fewer pixels than %q", VideoLevels[i], VideoLevels[i-1])
		}
		if worse.FrameRate > better.FrameRate {
			return fmt.Errorf("preset %q must not exceed the frame rate of %q", VideoLevels[i], VideoLevels[i-1])
		}
	}
	return nil
}

// AdaptationEntry records one applied change.
type AdaptationEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	From      AdaptationLevel `json:"from"`
	To        AdaptationLevel `json:"to"`
	Reason    string          `json:"reason"`
	Score     int             `json:"score"`
}

// AdaptationState is the engine state exposed to callers. CurrentConstraints
// is nil exactly when IsAudioOnly is true.
type AdaptationState struct {
	CurrentConstraints *VideoConstraints `json:"current_constraints"`
	Level              AdaptationLevel   `json:"level"`
	IsAdapting         bool              `json:"is_adapting"`
	LastAdaptationAt   *time.Time        `json:"last_adaptation_at"`
	Reason             string            `json:"reason"`
	IsAudioOnly        bool              `json:"is_audio_only"`
	History            []AdaptationEntry `json:"history"`
}
