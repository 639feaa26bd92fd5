package printer

import (
	"fmt"
	"time"
)

// Ago returns a compact relative time from now, e.g. "45s ago", "3m ago", "2d ago".
func Ago(now, t time.Time) string {
	diff := now.Sub(t)
	if diff < 0 {
		return "just now"
	}

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}

	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}

// FormatTimestamp returns the timestamp in UTC with second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatDuration rounds task execution durations so they stay readable,
// sub-second runs keep milliseconds.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
