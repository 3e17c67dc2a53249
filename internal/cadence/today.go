package cadence

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cadence/internal/model"
)

type TodayStatus struct {
	ChallengeID       uuid.UUID     `json:"challenge_id"`
	Today             time.Time     `json:"today"`
	IsUploadedToday   bool          `json:"is_uploaded_today"`
	Upload            *model.Upload `json:"upload,omitempty"`
	IsTodayDeadline   bool          `json:"is_today_deadline"`
	NextDeadline      *time.Time    `json:"next_deadline"`
	DaysUntilDeadline *int          `json:"days_until_deadline"`
}

// Overdue reports whether the deadline has passed.
func (s TodayStatus) Overdue() bool {
	return s.DaysUntilDeadline != nil && *s.DaysUntilDeadline < 0
}

// ResolveTodayStatus derives today's obligation state for a challenge.
// "Today" is the UTC calendar day containing now.
func ResolveTodayStatus(c model.Challenge, uploads []model.Upload, now time.Time) TodayStatus {
	todayStart := StartOfDay(now)
	todayEnd := todayStart.Add(day)

	status := TodayStatus{
		ChallengeID: c.ID,
		Today:       todayStart,
	}

	var latest *model.Upload
	for i := range uploads {
		u := &uploads[i]
		if u.UploadedAt.Before(todayStart) || !u.UploadedAt.Before(todayEnd) {
			continue
		}
		if latest == nil || u.UploadedAt.After(latest.UploadedAt) {
			latest = u
		}
	}
	if latest != nil {
		up := *latest
		status.IsUploadedToday = true
		status.Upload = &up
	}

	if c.NextUploadDeadline != nil {
		deadline := *c.NextUploadDeadline
		status.NextDeadline = &deadline

		diff := StartOfDay(deadline).Sub(todayStart)
		days := int(math.Ceil(diff.Hours() / 24))
		status.DaysUntilDeadline = &days
		status.IsTodayDeadline = days == 0
	}

	return status
}
