package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeEntry is one arrival time split into its grid coordinates.
type TimeEntry struct {
	Hour   int
	Minute int
}

// ParseTimeEntry splits an "H:MM" arrival string. Hours keep the site's own
// range (0-23, no zero padding).
func ParseTimeEntry(s string) (TimeEntry, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeEntry{}, fmt.Errorf("malformed time entry %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeEntry{}, fmt.Errorf("malformed hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeEntry{}, fmt.Errorf("malformed minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeEntry{}, fmt.Errorf("time entry %q out of range", s)
	}
	return TimeEntry{Hour: hour, Minute: minute}, nil
}

func (e TimeEntry) MinutesOfDay() int {
	return e.Hour*60 + e.Minute
}

// NextDepartureIndex finds the first entry at or after the wall clock in the
// scraped order. Entries after midnight keep their page position, so past
// the last listed time the answer is -1 rather than wrapping to the next
// day. Malformed entries are skipped.
func NextDepartureIndex(times []string, now time.Time) int {
	cutoff := now.Hour()*60 + now.Minute()
	for i, raw := range times {
		entry, err := ParseTimeEntry(raw)
		if err != nil {
			continue
		}
		if entry.MinutesOfDay() >= cutoff {
			return i
		}
	}
	return -1
}
