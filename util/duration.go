package util

import (
	"strings"
	"time"
)

// ShortDur formats d like d.String() without trailing zero units ("1m", not "1m0s").
func ShortDur(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

// Elapsed returns ShortDur of the time since start, rounded to milliseconds.
func Elapsed(start time.Time) string {
	return ShortDur(time.Since(start).Round(time.Millisecond))
}
