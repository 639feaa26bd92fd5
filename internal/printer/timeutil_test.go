package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/bosync/internal/printer"
)

func TestAgo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		t      time.Time
		expAgo string
	}{
		"Future times are shown as now.": {
			t:      now.Add(time.Minute),
			expAgo: "just now",
		},
		"Seconds.": {
			t:      now.Add(-45 * time.Second),
			expAgo: "45s ago",
		},
		"Minutes are truncated.": {
			t:      now.Add(-3*time.Minute - 59*time.Second),
			expAgo: "3m ago",
		},
		"Hours.": {
			t:      now.Add(-5 * time.Hour),
			expAgo: "5h ago",
		},
		"Days.": {
			t:      now.Add(-50 * time.Hour),
			expAgo: "2d ago",
		},
		"Different timezones are compared by instant.": {
			t:      now.Add(-10 * time.Minute).In(time.FixedZone("CET", 3600)),
			expAgo: "10m ago",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expAgo, printer.Ago(now, test.t))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 10, 13, 4, 5, 999, time.FixedZone("CET", 3600))
	assert.Equal(t, "2026-03-10 12:04:05 UTC", printer.FormatTimestamp(ts))
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]struct {
		d      time.Duration
		expOut string
	}{
		"Zero is not shown.": {
			d:      0,
			expOut: "-",
		},
		"Sub second keeps milliseconds.": {
			d:      1234567 * time.Nanosecond,
			expOut: "1ms",
		},
		"Longer durations are rounded.": {
			d:      1540 * time.Millisecond,
			expOut: "1.5s",
		},
		"Minutes.": {
			d:      90*time.Second + 260*time.Millisecond,
			expOut: "1m30.3s",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expOut, printer.FormatDuration(test.d))
		})
	}
}
