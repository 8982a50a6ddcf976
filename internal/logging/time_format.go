package logging

import "time"

// Console lines carry wall-clock time only; JSON lines carry full RFC 3339.
const consoleClockLayout = "15:04:05"

func formatClock(ts time.Time) string {
	return ts.In(time.Local).Format(consoleClockLayout)
}
