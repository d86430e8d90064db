package utils

import (
	"fmt"
	"time"
)

// FormatDuration formats duration in human-readable format
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%dh%dm", hours, minutes)
}

// FormatBitrate renders bits per second with a decimal unit. Zero means
// the rate is unknown and renders as "-".
func FormatBitrate(bps float64) string {
	switch {
	case bps <= 0:
		return "-"
	case bps < 1e3:
		return fmt.Sprintf("%.0fbps", bps)
	case bps < 1e6:
		return fmt.Sprintf("%.0fkbps", bps/1e3)
	default:
		return fmt.Sprintf("%.1fMbps", bps/1e6)
	}
}
