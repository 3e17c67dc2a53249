package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cadence/internal/email"
	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory claimer and candidate source.
type memStore struct {
	mu         sync.Mutex
	challenges []model.Challenge
	uploads    map[uuid.UUID][]model.Upload
	users      map[string]*model.User
	claims     int
	listErr    error
	uploadErr  map[uuid.UUID]error
	uploadBad  map[uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		uploads:   make(map[uuid.UUID][]model.Upload),
		users:     make(map[string]*model.User),
		uploadErr: make(map[uuid.UUID]error),
		uploadBad: make(map[uuid.UUID]bool),
	}
}

func (m *memStore) add(c model.Challenge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges = append(m.challenges, c)
}

func (m *memStore) get(id uuid.UUID) model.Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.challenges {
		if c.ID == id {
			return c
		}
	}
	return model.Challenge{}
}

func (m *memStore) ClaimIntervalNotification(ctx context.Context, id uuid.UUID, expectedVersion int64, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	for i := range m.challenges {
		c := &m.challenges[i]
		if c.ID != id {
			continue
		}
		if c.NotificationVersion != expectedVersion {
			return model.ErrConflict
		}
		c.NotificationVersion++
		t := sentAt
		c.LastIntervalNotificationSentAt = &t
		return nil
	}
	return model.ErrConflict
}

func (m *memStore) ListActive(ctx context.Context) ([]model.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Challenge
	for _, c := range m.challenges {
		if c.Status == model.StatusActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListByChallenge(ctx context.Context, id uuid.UUID) ([]model.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.uploadErr[id]; err != nil {
		return nil, err
	}
	if m.uploadBad[id] {
		panic("corrupt upload row")
	}
	return m.uploads[id], nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []email.Message
	err   error
	block bool
	panic bool
}

func (f *fakeSender) Send(ctx context.Context, msg email.Message) error {
	if f.block {
		// ignores ctx on purpose
		time.Sleep(time.Second)
	}
	if f.panic {
		panic("provider client is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs map[string][]websocket.Message
}

func (f *fakeBroadcaster) BroadcastTo(userID string, msg websocket.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgs == nil {
		f.msgs = make(map[string][]websocket.Message)
	}
	f.msgs[userID] = append(f.msgs[userID], msg)
}

var errBoom = errors.New("boom")

var testNow = time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)

func activeChallenge() model.Challenge {
	deadline := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	return model.Challenge{
		ID:                           uuid.New(),
		OwnerID:                      "user-1",
		Title:                        "Daily sketch",
		StartedAt:                    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		CadenceDays:                  2,
		Status:                       model.StatusActive,
		NextUploadDeadline:           &deadline,
		NotificationsEnabled:         true,
		IntervalNotificationsEnabled: true,
		IntervalMinutes:              60,
	}
}
