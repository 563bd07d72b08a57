package util

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTimeFlexible accepts the time formats a plan generator is allowed to
// emit: plain dates, RFC3339 timestamps, or epoch milliseconds.
func ParseTimeFlexible(timeStr string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", timeStr)
	if err == nil {
		return t.UTC(), nil
	}

	t, err = time.Parse(time.RFC3339Nano, timeStr)
	if err == nil {
		return t.UTC(), nil
	}
	t, err = time.Parse(time.RFC3339, timeStr) // Try without nano
	if err == nil {
		return t.UTC(), nil
	}

	// Try parsing as epoch milliseconds
	ms, err := strconv.ParseInt(timeStr, 10, 64)
	if err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
}
