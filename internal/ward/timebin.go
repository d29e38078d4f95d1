package ward

import (
	"fmt"
	"time"
)

// Bin counts for one day. All indices are 0-based and half-open: a
// ten-minute bin b covers minutes [b*10, b*10+10).
const (
	TenSecondBinsPerDay = 8640
	MinutesPerDay       = 1440
	TenMinuteBinsPerDay = 144
)

// secondsSinceMidnight uses the timestamp's own location; the raw
// export carries site-local wall-clock times.
func secondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// TenSecondIndex returns the 10-second bin of t, in [0, 8640).
func TenSecondIndex(t time.Time) int {
	return secondsSinceMidnight(t) / 10
}

// MinuteIndex returns the minute-of-day of t, in [0, 1440).
func MinuteIndex(t time.Time) int {
	return secondsSinceMidnight(t) / 60
}

// TenMinuteIndex returns the ten-minute bin of t, in [0, 144).
func TenMinuteIndex(t time.Time) int {
	return secondsSinceMidnight(t) / 600
}

// TenMinuteBinOfMinute maps a minute-of-day to its ten-minute bin.
func TenMinuteBinOfMinute(minute int) int {
	return minute / 10
}

// TenMinuteLabel formats a ten-minute bin as the wall-clock time of
// its left edge, e.g. bin 143 -> "23:50".
func TenMinuteLabel(bin int) string {
	return fmt.Sprintf("%02d:%02d", bin/6, (bin%6)*10)
}

// MinuteLabel formats a minute-of-day as "HH:MM".
func MinuteLabel(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
