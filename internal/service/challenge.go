// Package service applies ownership checks and challenge rules on top of the
// stores and the pure cadence functions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cadence/internal/cadence"
	"github.com/dukerupert/cadence/internal/metrics"
	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/websocket"
)

type ChallengeStore interface {
	Create(ctx context.Context, c *model.Challenge) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Challenge, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Challenge, error)
	UpdateDeadline(ctx context.Context, id uuid.UUID, deadline time.Time) error
	UpdateNotificationSettings(ctx context.Context, id uuid.UUID, ns model.NotificationSettings) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ChallengeStatus) error
	RecordUpload(ctx context.Context, u *model.Upload, p model.Progress, priorUploads int) error
}

type UploadStore interface {
	ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]model.Upload, error)
	CountByChallenge(ctx context.Context, challengeID uuid.UUID) (int, error)
}

type UserStore interface {
	Upsert(ctx context.Context, id, email string) (*model.User, error)
	Ensure(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type Broadcaster interface {
	BroadcastTo(userID string, msg websocket.Message)
}

type ChallengeService struct {
	challenges ChallengeStore
	uploads    UploadStore
	users      UserStore
	events     Broadcaster
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewChallengeService(challenges ChallengeStore, uploads UploadStore, users UserStore, events Broadcaster, m *metrics.Metrics, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{
		challenges: challenges,
		uploads:    uploads,
		users:      users,
		events:     events,
		metrics:    m,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreateChallengeInput struct {
	Title                        string     `json:"title"`
	CadenceDays                  int        `json:"cadence_days"`
	StartedAt                    *time.Time `json:"started_at"`
	NotificationsEnabled         *bool      `json:"notifications_enabled"`
	IntervalNotificationsEnabled *bool      `json:"interval_notifications_enabled"`
	IntervalMinutes              int        `json:"interval_minutes"`
}

func (s *ChallengeService) Create(ctx context.Context, ownerID string, in CreateChallengeInput) (*model.Challenge, error) {
	title := strings.TrimSpace(in.Title)
	if len(title) > 200 {
		return nil, fmt.Errorf("%w: title must be at most 200 characters", model.ErrInvalidArgument)
	}
	interval, err := normalizeInterval(in.IntervalMinutes)
	if err != nil {
		return nil, err
	}

	startedAt := s.now()
	if in.StartedAt != nil {
		startedAt = in.StartedAt.UTC()
	}
	deadline, err := cadence.ComputeNextDeadline(startedAt, in.CadenceDays, 0)
	if err != nil {
		return nil, err
	}

	if err := s.users.Ensure(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
	}

	c := &model.Challenge{
		OwnerID:                      ownerID,
		Title:                        title,
		StartedAt:                    startedAt,
		CadenceDays:                  in.CadenceDays,
		Status:                       model.StatusActive,
		NextUploadDeadline:           &deadline,
		NotificationsEnabled:         boolOr(in.NotificationsEnabled, true),
		IntervalNotificationsEnabled: boolOr(in.IntervalNotificationsEnabled, true),
		IntervalMinutes:              interval,
	}
	if err := s.challenges.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
	}

	s.logger.Info("challenge created", "challenge_id", c.ID, "owner_id", ownerID, "cadence_days", c.CadenceDays)
	return c, nil
}

// Get returns the challenge if it exists and belongs to ownerID.
func (s *ChallengeService) Get(ctx context.Context, ownerID string, id uuid.UUID) (*model.Challenge, error) {
	c, err := s.challenges.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
	}
	if c == nil || c.OwnerID != ownerID {
		return nil, fmt.Errorf("challenge %s: %w", id, model.ErrNotFound)
	}
	return c, nil
}

func (s *ChallengeService) List(ctx context.Context, ownerID string) ([]model.Challenge, error) {
	list, err := s.challenges.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
	}
	if list == nil {
		list = []model.Challenge{}
	}
	return list, nil
}

func (s *ChallengeService) GetTodayStatus(ctx context.Context, ownerID string, id uuid.UUID, now time.Time) (cadence.TodayStatus, error) {
	c, uploads, err := s.load(ctx, ownerID, id)
	if err != nil {
		return cadence.TodayStatus{}, err
	}
	return cadence.ResolveTodayStatus(*c, uploads, now), nil
}

func (s *ChallengeService) GetStats(ctx context.Context, ownerID string, id uuid.UUID) (cadence.Stats, error) {
	c, uploads, err := s.load(ctx, ownerID, id)
	if err != nil {
		return cadence.Stats{}, err
	}
	return cadence.Aggregate(uploads, c.CadenceDays), nil
}

// RecomputeDeadline recalculates the next deadline from the upload count and
// persists it.
func (s *ChallengeService) RecomputeDeadline(ctx context.Context, ownerID string, id uuid.UUID) (time.Time, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return time.Time{}, err
	}
	n, err := s.uploads.CountByChallenge(ctx, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
	}
	deadline, err := cadence.ComputeNextDeadline(c.StartedAt, c.CadenceDays, n)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.challenges.UpdateDeadline(ctx, id, deadline); err != nil {
		return time.Time{}, storeErr(err)
	}
	return deadline, nil
}

// RecordUpload appends an upload at uploadedAt, scoring it against the
// deadline that was in force, and refreshes the cached progress.
func (s *ChallengeService) RecordUpload(ctx context.Context, ownerID string, id uuid.UUID, uploadedAt time.Time) (*model.Upload, error) {
	c, uploads, err := s.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusActive {
		return nil, fmt.Errorf("challenge is %s: %w", c.Status, model.ErrConflict)
	}
	now := s.now()
	if uploadedAt.IsZero() {
		uploadedAt = now
	}
	uploadedAt = uploadedAt.UTC()
	if uploadedAt.Before(c.StartedAt) {
		return nil, fmt.Errorf("%w: upload predates challenge start", model.ErrInvalidArgument)
	}
	if uploadedAt.After(now.Add(model.MaxUploadClockSkew)) {
		return nil, fmt.Errorf("%w: upload is in the future", model.ErrInvalidArgument)
	}
	// Uploads are scored against deadlines in arrival order, so they must
	// also arrive in time order.
	if n := len(uploads); n > 0 && uploadedAt.Before(uploads[n-1].UploadedAt) {
		return nil, fmt.Errorf("%w: upload predates the latest recorded upload at %s",
			model.ErrInvalidArgument, uploads[n-1].UploadedAt.Format(time.RFC3339))
	}

	prior := len(uploads)
	due, err := cadence.ComputeNextDeadline(c.StartedAt, c.CadenceDays, prior)
	if err != nil {
		return nil, err
	}
	next, err := cadence.ComputeNextDeadline(c.StartedAt, c.CadenceDays, prior+1)
	if err != nil {
		return nil, err
	}

	u := &model.Upload{
		ChallengeID:  c.ID,
		UploadedAt:   uploadedAt,
		OnTime:       cadence.IsOnTime(uploadedAt, due),
		PointsEarned: model.LateUploadPoints,
	}
	if u.OnTime {
		u.PointsEarned = model.OnTimeUploadPoints
	}

	st := cadence.Aggregate(append(uploads, *u), c.CadenceDays)
	progress := model.Progress{
		PointsEarned:       st.TotalPoints,
		StreakCount:        st.CurrentStreak,
		LongestStreak:      st.LongestStreak,
		NextUploadDeadline: next,
	}
	if err := s.challenges.RecordUpload(ctx, u, progress, prior); err != nil {
		return nil, storeErr(err)
	}

	s.metrics.ObserveUpload(u.OnTime)
	s.logger.Info("upload recorded", "challenge_id", c.ID, "on_time", u.OnTime, "points", u.PointsEarned)
	if s.events != nil {
		s.events.BroadcastTo(ownerID, websocket.NewMessage("upload", "recorded", c.ID.String(), map[string]any{
			"upload_id":     u.ID.String(),
			"on_time":       u.OnTime,
			"points":        u.PointsEarned,
			"next_deadline": next.Format(time.RFC3339),
			"streak":        st.CurrentStreak,
		}))
	}
	return u, nil
}

func (s *ChallengeService) UpdateNotificationSettings(ctx context.Context, ownerID string, id uuid.UUID, ns model.NotificationSettings) (*model.Challenge, error) {
	interval, err := normalizeInterval(ns.IntervalMinutes)
	if err != nil {
		return nil, err
	}
	ns.IntervalMinutes = interval

	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	if err := s.challenges.UpdateNotificationSettings(ctx, id, ns); err != nil {
		return nil, storeErr(err)
	}
	return s.Get(ctx, ownerID, id)
}

// UpdateStatus ends an active challenge. Finished challenges cannot be
// reopened.
func (s *ChallengeService) UpdateStatus(ctx context.Context, ownerID string, id uuid.UUID, status model.ChallengeStatus) (*model.Challenge, error) {
	if status != model.StatusCompleted && status != model.StatusAbandoned {
		return nil, fmt.Errorf("%w: status must be completed or abandoned, got %q", model.ErrInvalidArgument, status)
	}
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if c.Status == status {
		return c, nil
	}
	if c.Status != model.StatusActive {
		return nil, fmt.Errorf("challenge is already %s: %w", c.Status, model.ErrConflict)
	}
	if err := s.challenges.UpdateStatus(ctx, id, status); err != nil {
		return nil, storeErr(err)
	}
	return s.Get(ctx, ownerID, id)
}

// SetEmail stores the address reminders for userID are sent to.
func (s *ChallengeService) SetEmail(ctx context.Context, userID, address string) (*model.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email address", model.ErrInvalidArgument)
	}
	u, err := s.users.Upsert(ctx, userID, addr.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
	}
	return u, nil
}

func (s *ChallengeService) Me(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
	}
	return u, nil
}

func (s *ChallengeService) load(ctx context.Context, ownerID string, id uuid.UUID) (*model.Challenge, []model.Upload, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	uploads, err := s.uploads.ListByChallenge(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
	}
	return c, uploads, nil
}

func normalizeInterval(minutes int) (int, error) {
	switch {
	case minutes == 0:
		return model.DefaultIntervalMinutes, nil
	case minutes < model.MinIntervalMinutes:
		return 0, fmt.Errorf("%w: interval must be at least %d minutes", model.ErrInvalidArgument, model.MinIntervalMinutes)
	}
	return minutes, nil
}

// storeErr keeps sentinel errors from the store and marks anything else as
// an infrastructure failure.
func storeErr(err error) error {
	if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrInfrastructure, err)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
