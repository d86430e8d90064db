package utils

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{100 * time.Millisecond, "100ms"},
		{2 * time.Second, "2.00s"},
		{2*time.Minute + 30*time.Second, "2m30s"},
		{2*time.Hour + 30*time.Minute, "2h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.duration.String(), func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.expected {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatBitrate(t *testing.T) {
	tests := []struct {
		bps      float64
		expected string
	}{
		{0, "-"},
		{-5, "-"},
		{640, "640bps"},
		{300_000, "300kbps"},
		{2_500_000, "2.5Mbps"},
	}

	for _, tt := range tests {
		if got := FormatBitrate(tt.bps); got != tt.expected {
			t.Errorf("FormatBitrate(%v) = %q, want %q", tt.bps, got, tt.expected)
		}
	}
}
