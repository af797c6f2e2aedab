package timeutil

import (
	"fmt"
	"math"
	"time"
)

// MsToTime converts an epoch-millisecond timestamp to a time in loc. Zero and
// negative values are treated as "not set".
func MsToTime(ms int64, loc *time.Location) (time.Time, bool) {
	if ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).In(loc), true
}

// ToEpochMs converts a time to UTC epoch milliseconds.
func ToEpochMs(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// EpochMs guards millisecond values sourced from JSON numbers. NaN, ±Inf and
// non-positive values map to nil rather than zero, because the sink rejects
// non-finite numeric literals and a zero timestamp is a lie.
func EpochMs(v float64) *int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return nil
	}
	ms := int64(v)
	return &ms
}

// FiscalYear renders the federal fiscal year ("FY26") for a time. Years roll
// over on October 1.
func FiscalYear(t time.Time) string {
	yearOffset := 0
	if t.Month() >= time.October {
		yearOffset = 1
	}
	return fmt.Sprintf("FY%02d", (t.Year()%100)+yearOffset)
}

// MonthFloor truncates a time to the first instant of its month.
func MonthFloor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// ReportMonth renders an epoch-millisecond timestamp as "YYYY-MM" in loc.
func ReportMonth(ms int64, loc *time.Location) string {
	t, ok := MsToTime(ms, loc)
	if !ok {
		return ""
	}
	return MonthFloor(t).Format("2006-01")
}
