// Package derived computes the fields of a reading entry that are never
// persisted: the clamped progress percentage and whether the entry is overdue.
// Everything here is pure; callers pass in the evaluation time.
package derived

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	MinProgress = 0
	MaxProgress = 100
)

// dueDateLayouts are tried in order. Date-only and zone-less values are read as
// UTC.
var dueDateLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// ClampProgress rounds n to the nearest integer and clamps it to [0, 100].
func ClampProgress(n float64) int {
	if math.IsNaN(n) {
		return MinProgress
	}
	r := math.Round(n)
	if r < MinProgress {
		return MinProgress
	}
	if r > MaxProgress {
		return MaxProgress
	}
	return int(r)
}

// ParseDueDate parses a due date in any of the accepted layouts.
func ParseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("due date is empty")
	}
	for _, layout := range dueDateLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized due date %q", s)
}

// ComputeOverdue reports whether dueDate is set, parses, and is strictly
// before now.
func ComputeOverdue(dueDate *string, now time.Time) bool {
	if dueDate == nil {
		return false
	}
	due, err := ParseDueDate(*dueDate)
	if err != nil {
		return false
	}
	return due.Before(now)
}
