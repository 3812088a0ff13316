package utils

import (
	"fmt"
	"time"
)

func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}

// ParseTimeRange reads an optional RFC3339 start/end pair, defaulting to the
// last seven days ending now.
func ParseTimeRange(startParam, endParam string, now time.Time) (time.Time, time.Time, error) {
	start := now.UTC().Add(-7 * 24 * time.Hour)
	end := now.UTC()

	if startParam != "" {
		t, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
		start = t
	}
	if endParam != "" {
		t, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
		end = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("'end' must not be before 'start'")
	}
	return start, end, nil
}
