package model

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSent                    Outcome = "sent"
	OutcomeSkippedNotDue           Outcome = "skipped-not-due"
	OutcomeSkippedAlreadySatisfied Outcome = "skipped-already-satisfied"
	OutcomeSkippedDisabled         Outcome = "skipped-disabled"
	OutcomeFailed                  Outcome = "failed"
)

// Skipped reports whether the outcome is one of the skipped-* variants.
func (o Outcome) Skipped() bool {
	switch o {
	case OutcomeSkippedNotDue, OutcomeSkippedAlreadySatisfied, OutcomeSkippedDisabled:
		return true
	}
	return false
}

// NotificationAttempt is the result of one decide-and-send cycle for a
// challenge. Only the watermark it may have advanced is persisted.
type NotificationAttempt struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	OwnerID     string    `json:"owner_id"`
	At          time.Time `json:"at"`
	Outcome     Outcome   `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	Err         error     `json:"-"`
}

// Report summarizes a single scheduler run.
type Report struct {
	Attempted int                   `json:"attempted"`
	Sent      int                   `json:"sent"`
	Skipped   int                   `json:"skipped"`
	Failed    int                   `json:"failed"`
	Disabled  bool                  `json:"disabled,omitempty"`
	StartedAt time.Time             `json:"started_at"`
	Duration  time.Duration         `json:"duration"`
	Attempts  []NotificationAttempt `json:"attempts"`
}

// Add folds an attempt into the report counters.
func (r *Report) Add(a NotificationAttempt) {
	r.Attempted++
	switch {
	case a.Outcome == OutcomeSent:
		r.Sent++
	case a.Outcome == OutcomeFailed:
		r.Failed++
	case a.Outcome.Skipped():
		r.Skipped++
	}
	r.Attempts = append(r.Attempts, a)
}
