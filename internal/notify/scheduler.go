// Package notify decides whether a challenge owner should be reminded to
// upload and sends the reminder at most once per interval, even when
// several scheduler runs overlap.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cadence/internal/cadence"
	"github.com/dukerupert/cadence/internal/email"
	"github.com/dukerupert/cadence/internal/metrics"
	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/websocket"
)

const DefaultSendTimeout = 10 * time.Second

// Claimer advances a challenge's reminder watermark with a single
// conditional write. It returns model.ErrConflict when expectedVersion is
// stale.
type Claimer interface {
	ClaimIntervalNotification(ctx context.Context, id uuid.UUID, expectedVersion int64, sentAt time.Time) error
}

// Broadcaster pushes live events to a user's connections.
type Broadcaster interface {
	BroadcastTo(userID string, msg websocket.Message)
}

// Candidate is everything EvaluateAndSend needs to know about one challenge.
type Candidate struct {
	Challenge model.Challenge
	Uploads   []model.Upload
	Recipient string
}

type Scheduler struct {
	claimer     Claimer
	sender      email.Sender
	logger      *slog.Logger
	sendTimeout time.Duration
	baseURL     string
	metrics     *metrics.Metrics
	events      Broadcaster
}

type Option func(*Scheduler)

func WithSendTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithBaseURL sets the link included in reminder emails.
func WithBaseURL(u string) Option {
	return func(s *Scheduler) { s.baseURL = u }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Scheduler) { s.events = b }
}

func NewScheduler(claimer Claimer, sender email.Sender, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		claimer:     claimer,
		sender:      sender,
		logger:      logger,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateAndSend runs one decide-claim-send cycle for a challenge.
//
// Eligibility is checked in order: the challenge must be active with both
// notification flags on and an email on file, nothing may have been
// uploaded today, and the reminder interval must have elapsed since the
// watermark. The watermark is then claimed; losing the claim to a
// concurrent run is reported as skipped-not-due. A send failure after a
// won claim is reported as failed and the watermark stays advanced.
func (s *Scheduler) EvaluateAndSend(ctx context.Context, cand Candidate, now time.Time) model.NotificationAttempt {
	attempt := s.evaluate(ctx, cand, now)
	s.metrics.ObserveAttempt(string(attempt.Outcome))
	return attempt
}

func (s *Scheduler) evaluate(ctx context.Context, cand Candidate, now time.Time) model.NotificationAttempt {
	c := cand.Challenge
	attempt := model.NotificationAttempt{
		ChallengeID: c.ID,
		OwnerID:     c.OwnerID,
		At:          now,
	}

	if c.Status != model.StatusActive || !c.NotificationsEnabled || !c.IntervalNotificationsEnabled || cand.Recipient == "" {
		attempt.Outcome = model.OutcomeSkippedDisabled
		return attempt
	}

	today := cadence.ResolveTodayStatus(c, cand.Uploads, now)
	if today.IsUploadedToday {
		attempt.Outcome = model.OutcomeSkippedAlreadySatisfied
		return attempt
	}

	if last := c.LastIntervalNotificationSentAt; last != nil && now.Sub(*last) < c.ReminderInterval() {
		attempt.Outcome = model.OutcomeSkippedNotDue
		return attempt
	}

	if err := s.claimer.ClaimIntervalNotification(ctx, c.ID, c.NotificationVersion, now); err != nil {
		if errors.Is(err, model.ErrConflict) {
			attempt.Outcome = model.OutcomeSkippedNotDue
			return attempt
		}
		return failed(attempt, fmt.Errorf("%w: %v", model.ErrInfrastructure, err))
	}

	msg := RenderReminder(c, today, cand.Recipient, s.baseURL)

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := time.Now()
	err := s.send(sendCtx, msg)
	s.metrics.ObserveSend(time.Since(start))
	if err != nil {
		if !errors.Is(err, model.ErrTransport) {
			err = fmt.Errorf("%w: %v", model.ErrTransport, err)
		}
		s.logger.Warn("reminder send failed", "challenge_id", c.ID, "error", err)
		return failed(attempt, err)
	}

	attempt.Outcome = model.OutcomeSent
	s.logger.Info("reminder sent", "challenge_id", c.ID, "owner_id", c.OwnerID)
	if s.events != nil {
		s.events.BroadcastTo(c.OwnerID, websocket.NewMessage("reminder", "sent", c.ID.String(), map[string]any{
			"at": now.UTC().Format(time.RFC3339),
		}))
	}
	return attempt
}

// send bounds the transport call by ctx even if the sender ignores it.
func (s *Scheduler) send(ctx context.Context, msg email.Message) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("%w: send panicked: %v", model.ErrTransport, p)
			}
		}()
		done <- s.sender.Send(ctx, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: send: %v", model.ErrTransport, ctx.Err())
	}
}

func failed(a model.NotificationAttempt, err error) model.NotificationAttempt {
	a.Outcome = model.OutcomeFailed
	a.Err = err
	a.Error = err.Error()
	return a
}
