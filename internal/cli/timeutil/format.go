// Package timeutil provides time formatting helpers for CLI output.
package timeutil

import (
	"fmt"
	"time"
)

// LocalTimeFormat is the layout used for timestamps in CLI output.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// FormatTime renders a timestamp in the local timezone.
func FormatTime(t time.Time) string {
	return t.Local().Format(LocalTimeFormat)
}

// FormatDuration renders a duration as "3d 2h 30m 15s", dropping leading
// zero units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
