package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cadence/internal/model"
)

type ChallengeStore struct {
	db *sql.DB
}

func NewChallengeStore(db *sql.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func scanChallenge(scanner interface{ Scan(...any) error }) (*model.Challenge, error) {
	var c model.Challenge
	var deadline, lastSent sql.NullTime
	err := scanner.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.StartedAt, &c.CadenceDays, &c.Status,
		&c.PointsEarned, &c.StreakCount, &c.LongestStreak, &deadline,
		&c.NotificationsEnabled, &c.IntervalNotificationsEnabled, &c.IntervalMinutes,
		&lastSent, &c.NotificationVersion, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.StartedAt = c.StartedAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.NextUploadDeadline = nullTimePtr(deadline)
	c.LastIntervalNotificationSentAt = nullTimePtr(lastSent)
	return &c, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

const challengeCols = `id, owner_id, title, started_at, cadence_days, status,
	points_earned, streak_count, longest_streak, next_upload_deadline,
	notifications_enabled, interval_notifications_enabled, interval_minutes,
	last_interval_notification_sent_at, notification_version, created_at, updated_at`

// Create inserts c. ID and timestamps are filled in when unset.
func (s *ChallengeStore) Create(ctx context.Context, c *model.Challenge) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenges (`+challengeCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Title, c.StartedAt.UTC(), c.CadenceDays, c.Status,
		c.PointsEarned, c.StreakCount, c.LongestStreak, timePtrArg(c.NextUploadDeadline),
		c.NotificationsEnabled, c.IntervalNotificationsEnabled, c.IntervalMinutes,
		timePtrArg(c.LastIntervalNotificationSentAt), c.NotificationVersion, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeCols+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

func (s *ChallengeStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Challenge, error) {
	return s.list(ctx, "list challenges by owner",
		`SELECT `+challengeCols+` FROM challenges WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

// ListActive returns every challenge the reminder job may consider.
func (s *ChallengeStore) ListActive(ctx context.Context) ([]model.Challenge, error) {
	return s.list(ctx, "list active challenges",
		`SELECT `+challengeCols+` FROM challenges WHERE status = ? ORDER BY created_at ASC`, model.StatusActive)
}

func (s *ChallengeStore) list(ctx context.Context, op, query string, args ...any) ([]model.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
		`UPDATE challenges SET next_upload_deadline = ?, updated_at = ? WHERE id = ?`,
		deadline.UTC(), time.Now().UTC(), id)
}

func (s *ChallengeStore) UpdateNotificationSettings(ctx context.Context, id uuid.UUID, ns model.NotificationSettings) error {
	return s.exec(ctx, "update notification settings",
		`UPDATE challenges
		 SET notifications_enabled = ?, interval_notifications_enabled = ?, interval_minutes = ?, updated_at = ?
		 WHERE id = ?`,
		ns.NotificationsEnabled, ns.IntervalNotificationsEnabled, ns.IntervalMinutes, time.Now().UTC(), id)
}

func (s *ChallengeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ChallengeStatus) error {
	return s.exec(ctx, "update status",
		`UPDATE challenges SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
}

func (s *ChallengeStore) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return nil
}

// ClaimIntervalNotification advances the reminder watermark to sentAt only
// if nobody else has moved it since expectedVersion was read. A lost race
// returns model.ErrConflict.
func (s *ChallengeStore) ClaimIntervalNotification(ctx context.Context, id uuid.UUID, expectedVersion int64, sentAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE challenges
		 SET last_interval_notification_sent_at = ?, notification_version = notification_version + 1, updated_at = ?
		 WHERE id = ? AND notification_version = ?`,
		sentAt.UTC(), time.Now().UTC(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("claim notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim notification: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("claim notification %s: %w", id, model.ErrConflict)
	}
	return nil
}

// RecordUpload appends u and writes the recomputed progress in one
// transaction. priorUploads is the upload count the progress was computed
// from; if another upload landed in between, model.ErrConflict is returned
// and nothing is written.
func (s *ChallengeStore) RecordUpload(ctx context.Context, u *model.Upload, p model.Progress, priorUploads int) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE challenges
		 SET points_earned = ?, streak_count = ?, longest_streak = ?, next_upload_deadline = ?, updated_at = ?
		 WHERE id = ?`,
		p.PointsEarned, p.StreakCount, p.LongestStreak, p.NextUploadDeadline.UTC(), now, u.ChallengeID)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update progress: %w", model.ErrNotFound)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads WHERE challenge_id = ?`, u.ChallengeID).Scan(&count); err != nil {
		return fmt.Errorf("count uploads: %w", err)
	}
	if count != priorUploads {
		return fmt.Errorf("record upload: have %d uploads, expected %d: %w", count, priorUploads, model.ErrConflict)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO uploads (id, challenge_id, uploaded_at, points_earned, on_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.ChallengeID, u.UploadedAt.UTC(), u.PointsEarned, u.OnTime, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}

	return tx.Commit()
}
