package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/cadence/internal/database"
	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/store"
	"github.com/dukerupert/cadence/internal/websocket"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (r *recordingBroadcaster) BroadcastTo(userID string, msg websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func setupService(t *testing.T) (*ChallengeService, *recordingBroadcaster) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	events := &recordingBroadcaster{}
	svc := NewChallengeService(
		store.NewChallengeStore(db),
		store.NewUploadStore(db),
		store.NewUserStore(db),
		events,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, events
}

var start = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func createTestChallenge(t *testing.T, svc *ChallengeService, owner string, cadenceDays int) *model.Challenge {
	t.Helper()
	st := start
	c, err := svc.Create(context.Background(), owner, CreateChallengeInput{
		Title:       "Weekly vlog",
		CadenceDays: cadenceDays,
		StartedAt:   &st,
	})
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	return c
}

func TestCreateChallengeDefaults(t *testing.T) {
	svc, _ := setupService(t)

	c := createTestChallenge(t, svc, "user-1", 2)
	if c.Status != model.StatusActive {
		t.Errorf("status = %q, want active", c.Status)
	}
	if c.IntervalMinutes != model.DefaultIntervalMinutes {
		t.Errorf("interval = %d, want %d", c.IntervalMinutes, model.DefaultIntervalMinutes)
	}
	if !c.NotificationsEnabled || !c.IntervalNotificationsEnabled {
		t.Error("expected notifications enabled by default")
	}
	want := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	if c.NextUploadDeadline == nil || !c.NextUploadDeadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", c.NextUploadDeadline, want)
	}
}

func TestCreateChallengeValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateChallengeInput
	}{
		{"zero cadence", CreateChallengeInput{CadenceDays: 0}},
		{"negative cadence", CreateChallengeInput{CadenceDays: -3}},
		{"short interval", CreateChallengeInput{CadenceDays: 1, IntervalMinutes: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "user-1", tt.in)
			if !errors.Is(err, model.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	c := createTestChallenge(t, svc, "user-1", 2)

	if _, err := svc.Get(ctx, "user-2", c.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("other owner err = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetTodayStatus(ctx, "user-2", c.ID, start); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("today err = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetStats(ctx, "user-1", uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("stats err = %v, want ErrNotFound", err)
	}

	list, err := svc.List(ctx, "user-2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("user-2 list = %d, want 0", len(list))
	}
}

func TestRecordUploadScoresAgainstDeadline(t *testing.T) {
	svc, events := setupService(t)
	ctx := context.Background()

	c := createTestChallenge(t, svc, "user-1", 2)

	// due Jan 3; uploaded on the due day
	u1, err := svc.RecordUpload(ctx, "user-1", c.ID, time.Date(2024, 1, 3, 22, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if !u1.OnTime || u1.PointsEarned != model.OnTimeUploadPoints {
		t.Errorf("first upload = %+v, want on time", u1)
	}

	// due Jan 5; uploaded Jan 6
	u2, err := svc.RecordUpload(ctx, "user-1", c.ID, time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if u2.OnTime || u2.PointsEarned != model.LateUploadPoints {
		t.Errorf("second upload = %+v, want late", u2)
	}

	got, err := svc.Get(ctx, "user-1", c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PointsEarned != 12 {
		t.Errorf("points = %d, want 12", got.PointsEarned)
	}
	if got.StreakCount != 0 || got.LongestStreak != 1 {
		t.Errorf("streak = %d/%d, want 0/1", got.StreakCount, got.LongestStreak)
	}
	wantDeadline := time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC)
	if got.NextUploadDeadline == nil || !got.NextUploadDeadline.Equal(wantDeadline) {
		t.Errorf("deadline = %v, want %v", got.NextUploadDeadline, wantDeadline)
	}

	stats, err := svc.GetStats(ctx, "user-1", c.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.OnTimeCount != 1 || stats.LateCount != 1 || stats.TotalPoints != 12 {
		t.Errorf("stats = %+v", stats)
	}

	if len(events.msgs) != 2 || events.msgs[0].Type != "upload_recorded" {
		t.Errorf("events = %+v, want two upload_recorded", events.msgs)
	}
}

func TestRecordUploadRejectsFinishedChallenge(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	c := createTestChallenge(t, svc, "user-1", 1)
	if _, err := svc.UpdateStatus(ctx, "user-1", c.ID, model.StatusAbandoned); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	_, err := svc.RecordUpload(ctx, "user-1", c.ID, start.Add(time.Hour))
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestRecordUploadBeforeStart(t *testing.T) {
	svc, _ := setupService(t)

	c := createTestChallenge(t, svc, "user-1", 1)
	_, err := svc.RecordUpload(context.Background(), "user-1", c.ID, start.Add(-time.Hour))
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestTodayStatusAfterUpload(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	c := createTestChallenge(t, svc, "user-1", 2)
	now := time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC)

	before, err := svc.GetTodayStatus(ctx, "user-1", c.ID, now)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if before.IsUploadedToday {
		t.Error("expected not uploaded yet")
	}
	if before.DaysUntilDeadline == nil || *before.DaysUntilDeadline != 1 {
		t.Errorf("days until deadline = %v, want 1", before.DaysUntilDeadline)
	}

	if _, err := svc.RecordUpload(ctx, "user-1", c.ID, now.Add(-time.Hour)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	after, err := svc.GetTodayStatus(ctx, "user-1", c.ID, now)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if !after.IsUploadedToday || after.Upload == nil {
		t.Fatal("expected upload today")
	}
	if *after.DaysUntilDeadline != 3 {
		t.Errorf("days until deadline = %d, want 3", *after.DaysUntilDeadline)
	}
}

func TestRecomputeDeadline(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	c := createTestChallenge(t, svc, "user-1", 3)
	svc.RecordUpload(ctx, "user-1", c.ID, start.Add(24*time.Hour))
	svc.RecordUpload(ctx, "user-1", c.ID, start.Add(96*time.Hour))

	got, err := svc.RecomputeDeadline(ctx, "user-1", c.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	want := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("deadline = %v, want %v", got, want)
	}

	if _, err := svc.RecomputeDeadline(ctx, "user-2", c.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("other owner err = %v, want ErrNotFound", err)
	}
}

func TestUpdateNotificationSettings(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	c := createTestChallenge(t, svc, "user-1", 1)

	got, err := svc.UpdateNotificationSettings(ctx, "user-1", c.ID, model.NotificationSettings{
		NotificationsEnabled: true,
		IntervalMinutes:      0,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.IntervalNotificationsEnabled {
		t.Error("expected interval notifications off")
	}
	if got.IntervalMinutes != model.DefaultIntervalMinutes {
		t.Errorf("interval = %d, want default", got.IntervalMinutes)
	}

	_, err = svc.UpdateNotificationSettings(ctx, "user-1", c.ID, model.NotificationSettings{IntervalMinutes: 59})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	c := createTestChallenge(t, svc, "user-1", 1)

	if _, err := svc.UpdateStatus(ctx, "user-1", c.ID, model.StatusActive); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("reactivate err = %v, want ErrInvalidArgument", err)
	}

	got, err := svc.UpdateStatus(ctx, "user-1", c.ID, model.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}

	if _, err := svc.UpdateStatus(ctx, "user-1", c.ID, model.StatusAbandoned); !errors.Is(err, model.ErrConflict) {
		t.Errorf("abandon completed err = %v, want ErrConflict", err)
	}
}

func TestSetEmail(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.SetEmail(ctx, "user-1", "not an email"); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}

	u, err := svc.SetEmail(ctx, "user-1", " Alice <alice@example.com> ")
	if err != nil {
		t.Fatalf("set email: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want alice@example.com", u.Email)
	}

	me, err := svc.Me(ctx, "user-1")
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Email != "alice@example.com" {
		t.Errorf("me email = %q", me.Email)
	}

	if _, err := svc.Me(ctx, "nobody"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown user err = %v, want ErrNotFound", err)
	}
}

func TestRecordUploadRejectsFutureTimestamp(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	clock := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	c := createTestChallenge(t, svc, "user-1", 2)

	_, err := svc.RecordUpload(ctx, "user-1", c.ID, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("far future err = %v, want ErrInvalidArgument", err)
	}

	// within the allowed skew
	if _, err := svc.RecordUpload(ctx, "user-1", c.ID, clock.Add(time.Minute)); err != nil {
		t.Errorf("slightly ahead upload: %v", err)
	}
}

func TestRecordUploadRejectsOutOfOrder(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC) }

	c := createTestChallenge(t, svc, "user-1", 2)

	if _, err := svc.RecordUpload(ctx, "user-1", c.ID, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("first upload: %v", err)
	}

	_, err := svc.RecordUpload(ctx, "user-1", c.ID, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC))
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("backdated err = %v, want ErrInvalidArgument", err)
	}

	stats, err := svc.GetStats(ctx, "user-1", c.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.OnTimeCount+stats.LateCount != 1 {
		t.Errorf("uploads = %d, want 1", stats.OnTimeCount+stats.LateCount)
	}
}
