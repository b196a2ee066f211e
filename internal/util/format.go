// Package util holds small formatting helpers shared by the binaries.
package util //nolint:revive // shared helpers with no better home

import "time"

// FormatElapsed renders a job age for tables. Non-positive durations render
// as "-". Sub-second values keep millisecond precision, anything up to an
// hour is rounded to the second and longer runs to the minute.
func FormatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Truncate(time.Millisecond).String()
	case d < time.Hour:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Minute).String()
	}
}
