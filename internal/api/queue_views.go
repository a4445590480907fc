package api

import (
	"cmp"
	"slices"
	"time"
)

// SortJobsNewestFirst returns a copy of jobs ordered by creation time, newest
// first. Jobs created in the same instant are ordered by descending row id.
func SortJobsNewestFirst(jobs []Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	sorted := slices.Clone(jobs)
	slices.SortStableFunc(sorted, func(a, b Job) int {
		if c := ParseTime(b.CreatedAt).Compare(ParseTime(a.CreatedAt)); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return sorted
}

// ParseTime parses an API timestamp, returning the zero time for empty or
// malformed values.
func ParseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
