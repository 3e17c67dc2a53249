package model

import (
	"time"

	"github.com/google/uuid"
)

type Upload struct {
	ID           uuid.UUID `json:"id"`
	ChallengeID  uuid.UUID `json:"challenge_id"`
	UploadedAt   time.Time `json:"uploaded_at"`
	PointsEarned int       `json:"points_earned"`
	OnTime       bool      `json:"on_time"`
	CreatedAt    time.Time `json:"created_at"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
