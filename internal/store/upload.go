package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/cadence/internal/model"
)

type UploadStore struct {
	db *sql.DB
}

func NewUploadStore(db *sql.DB) *UploadStore {
	return &UploadStore{db: db}
}

func scanUpload(scanner interface{ Scan(...any) error }) (*model.Upload, error) {
	var u model.Upload
	err := scanner.Scan(&u.ID, &u.ChallengeID, &u.UploadedAt, &u.PointsEarned, &u.OnTime, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.UploadedAt = u.UploadedAt.UTC()
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

const uploadCols = `id, challenge_id, uploaded_at, points_earned, on_time, created_at`

// ListByChallenge returns uploads oldest first.
func (s *UploadStore) ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]model.Upload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+uploadCols+` FROM uploads WHERE challenge_id = ? ORDER BY uploaded_at ASC`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []model.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, *u)
	}
	return uploads, rows.Err()
}

func (s *UploadStore) CountByChallenge(ctx context.Context, challengeID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads WHERE challenge_id = ?`, challengeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count uploads: %w", err)
	}
	return n, nil
}
