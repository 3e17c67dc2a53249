package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/cadence/internal/model"
)

type UploadStore struct {
	pool *pgxpool.Pool
}

func NewUploadStore(pool *pgxpool.Pool) *UploadStore {
	return &UploadStore{pool: pool}
}

func (s *UploadStore) ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]model.Upload, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, challenge_id, uploaded_at, points_earned, on_time, created_at
		 FROM uploads WHERE challenge_id = $1 ORDER BY uploaded_at ASC`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	uploads, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Upload, error) {
		var u model.Upload
		err := row.Scan(&u.ID, &u.ChallengeID, &u.UploadedAt, &u.PointsEarned, &u.OnTime, &u.CreatedAt)
		u.UploadedAt = u.UploadedAt.UTC()
		u.CreatedAt = u.CreatedAt.UTC()
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan uploads: %w", err)
	}
	return uploads, nil
}

func (s *UploadStore) CountByChallenge(ctx context.Context, challengeID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM uploads WHERE challenge_id = $1`, challengeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count uploads: %w", err)
	}
	return n, nil
}
