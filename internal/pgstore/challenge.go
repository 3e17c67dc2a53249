// Package pgstore is the Postgres implementation of the challenge, upload
// and user stores. Method sets match package store.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/cadence/internal/model"
)

type ChallengeStore struct {
	pool *pgxpool.Pool
}

func NewChallengeStore(pool *pgxpool.Pool) *ChallengeStore {
	return &ChallengeStore{pool: pool}
}

func scanChallenge(row pgx.Row) (*model.Challenge, error) {
	var c model.Challenge
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.StartedAt, &c.CadenceDays, &c.Status,
		&c.PointsEarned, &c.StreakCount, &c.LongestStreak, &c.NextUploadDeadline,
		&c.NotificationsEnabled, &c.IntervalNotificationsEnabled, &c.IntervalMinutes,
		&c.LastIntervalNotificationSentAt, &c.NotificationVersion, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.StartedAt = c.StartedAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.NextUploadDeadline = utcPtr(c.NextUploadDeadline)
	c.LastIntervalNotificationSentAt = utcPtr(c.LastIntervalNotificationSentAt)
	return &c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

const challengeCols = `id, owner_id, title, started_at, cadence_days, status,
	points_earned, streak_count, longest_streak, next_upload_deadline,
	notifications_enabled, interval_notifications_enabled, interval_minutes,
	last_interval_notification_sent_at, notification_version, created_at, updated_at`

func (s *ChallengeStore) Create(ctx context.Context, c *model.Challenge) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO challenges (`+challengeCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		c.ID, c.OwnerID, c.Title, c.StartedAt.UTC(), c.CadenceDays, string(c.Status),
		c.PointsEarned, c.StreakCount, c.LongestStreak, c.NextUploadDeadline,
		c.NotificationsEnabled, c.IntervalNotificationsEnabled, c.IntervalMinutes,
		c.LastIntervalNotificationSentAt, c.NotificationVersion, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Challenge, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+challengeCols+` FROM challenges WHERE id = $1`, id)
	c, err := scanChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

func (s *ChallengeStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Challenge, error) {
	return s.list(ctx, "list challenges by owner",
		`SELECT `+challengeCols+` FROM challenges WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

func (s *ChallengeStore) ListActive(ctx context.Context) ([]model.Challenge, error) {
	return s.list(ctx, "list active challenges",
		`SELECT `+challengeCols+` FROM challenges WHERE status = $1 ORDER BY created_at ASC`, string(model.StatusActive))
}

func (s *ChallengeStore) list(ctx context.Context, op, query string, args ...any) ([]model.Challenge, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var challenges []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

func (s *ChallengeStore) UpdateDeadline(ctx context.Context, id uuid.UUID, deadline time.Time) error {
	return s.exec(ctx, "update deadline",
		`UPDATE challenges SET next_upload_deadline = $1, updated_at = now() WHERE id = $2`,
		deadline.UTC(), id)
}

func (s *ChallengeStore) UpdateNotificationSettings(ctx context.Context, id uuid.UUID, ns model.NotificationSettings) error {
	return s.exec(ctx, "update notification settings",
		`UPDATE challenges
		 SET notifications_enabled = $1, interval_notifications_enabled = $2, interval_minutes = $3, updated_at = now()
		 WHERE id = $4`,
		ns.NotificationsEnabled, ns.IntervalNotificationsEnabled, ns.IntervalMinutes, id)
}

func (s *ChallengeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ChallengeStatus) error {
	return s.exec(ctx, "update status",
		`UPDATE challenges SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id)
}

func (s *ChallengeStore) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return nil
}

// ClaimIntervalNotification is a compare-and-set on notification_version.
func (s *ChallengeStore) ClaimIntervalNotification(ctx context.Context, id uuid.UUID, expectedVersion int64, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE challenges
		 SET last_interval_notification_sent_at = $1, notification_version = notification_version + 1, updated_at = now()
		 WHERE id = $2 AND notification_version = $3`,
		sentAt.UTC(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("claim notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim notification %s: %w", id, model.ErrConflict)
	}
	return nil
}

// RecordUpload appends u and writes p in one transaction. The progress
// update locks the challenge row, so the upload count check below cannot
// race with another RecordUpload for the same challenge.
func (s *ChallengeStore) RecordUpload(ctx context.Context, u *model.Upload, p model.Progress, priorUploads int) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE challenges
		 SET points_earned = $1, streak_count = $2, longest_streak = $3, next_upload_deadline = $4, updated_at = now()
		 WHERE id = $5`,
		p.PointsEarned, p.StreakCount, p.LongestStreak, p.NextUploadDeadline.UTC(), u.ChallengeID)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update progress: %w", model.ErrNotFound)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM uploads WHERE challenge_id = $1`, u.ChallengeID).Scan(&count); err != nil {
		return fmt.Errorf("count uploads: %w", err)
	}
	if count != priorUploads {
		return fmt.Errorf("record upload: have %d uploads, expected %d: %w", count, priorUploads, model.ErrConflict)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO uploads (id, challenge_id, uploaded_at, points_earned, on_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.ChallengeID, u.UploadedAt.UTC(), u.PointsEarned, u.OnTime, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upload: %w", err)
	}
	return nil
}
