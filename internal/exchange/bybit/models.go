package bybit

import (
	"strconv"
	"time"
)

// Helper functions for parsing string numbers
func parseFloat64(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseTimestamp converts milliseconds timestamp to time.Time
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	msec, _ := strconv.ParseInt(ts, 10, 64)
	return time.UnixMilli(msec)
}

// FormatFloat renders a quantity or price the way the API expects
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
