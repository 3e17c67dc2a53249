// Package cadence holds the pure date arithmetic behind upload challenges:
// when the next upload is due, whether today's upload happened, and how
// points and streaks accumulate.
package cadence

import (
	"fmt"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

const day = 24 * time.Hour

// ComputeNextDeadline returns the time the next upload is due after
// completed uploads. The time of day of startedAt is preserved.
func ComputeNextDeadline(startedAt time.Time, cadenceDays, completed int) (time.Time, error) {
	if cadenceDays < 1 {
		return time.Time{}, fmt.Errorf("%w: cadence must be at least 1 day, got %d", model.ErrInvalidArgument, cadenceDays)
	}
	if completed < 0 {
		return time.Time{}, fmt.Errorf("%w: completed upload count must not be negative, got %d", model.ErrInvalidArgument, completed)
	}
	return startedAt.AddDate(0, 0, (completed+1)*cadenceDays), nil
}

// StartOfDay truncates t to midnight UTC of its UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsOnTime reports whether an upload at uploadedAt satisfies deadline.
// Comparison is by UTC calendar day, so anything on the due day counts.
func IsOnTime(uploadedAt, deadline time.Time) bool {
	return !StartOfDay(uploadedAt).After(StartOfDay(deadline))
}
