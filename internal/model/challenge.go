package model

import (
	"time"

	"github.com/google/uuid"
)

type ChallengeStatus string

const (
	StatusActive    ChallengeStatus = "active"
	StatusCompleted ChallengeStatus = "completed"
	StatusAbandoned ChallengeStatus = "abandoned"
)

// Valid reports whether s is one of the known statuses.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Policy constants shared by the deadline, streak and reminder logic.
const (
	// MinIntervalMinutes bounds how often interval reminders may be sent.
	MinIntervalMinutes     = 60
	DefaultIntervalMinutes = 60

	// StreakGraceDays is added to the cadence when deciding whether two
	// consecutive uploads belong to the same streak. It absorbs clock skew
	// between the uploader and the server.
	StreakGraceDays = 1

	OnTimeUploadPoints = 10
	LateUploadPoints   = 2
)

// MaxUploadClockSkew is how far past the server clock an upload timestamp
// may be.
const MaxUploadClockSkew = 5 * time.Minute

type Challenge struct {
	ID                             uuid.UUID       `json:"id"`
	OwnerID                        string          `json:"owner_id"`
	Title                          string          `json:"title"`
	StartedAt                      time.Time       `json:"started_at"`
	CadenceDays                    int             `json:"cadence_days"`
	Status                         ChallengeStatus `json:"status"`
	PointsEarned                   int             `json:"points_earned"`
	StreakCount                    int             `json:"streak_count"`
	LongestStreak                  int             `json:"longest_streak"`
	NextUploadDeadline             *time.Time      `json:"next_upload_deadline"`
	NotificationsEnabled           bool            `json:"notifications_enabled"`
	IntervalNotificationsEnabled   bool            `json:"interval_notifications_enabled"`
	IntervalMinutes                int             `json:"interval_minutes"`
	LastIntervalNotificationSentAt *time.Time      `json:"last_interval_notification_sent_at"`
	NotificationVersion            int64           `json:"-"`
	CreatedAt                      time.Time       `json:"created_at"`
	UpdatedAt                      time.Time       `json:"updated_at"`
}

// ReminderInterval returns the effective interval between reminders,
// never shorter than MinIntervalMinutes.
func (c Challenge) ReminderInterval() time.Duration {
	m := c.IntervalMinutes
	if m < MinIntervalMinutes {
		m = MinIntervalMinutes
	}
	return time.Duration(m) * time.Minute
}

// NotificationSettings is the user-editable subset of reminder fields.
type NotificationSettings struct {
	NotificationsEnabled         bool `json:"notifications_enabled"`
	IntervalNotificationsEnabled bool `json:"interval_notifications_enabled"`
	IntervalMinutes              int  `json:"interval_minutes"`
}

// Progress holds the cached aggregates written back after each upload.
type Progress struct {
	PointsEarned       int
	StreakCount        int
	LongestStreak      int
	NextUploadDeadline time.Time
}
