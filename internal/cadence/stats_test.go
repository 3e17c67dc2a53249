package cadence

import (
	"testing"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

var statsStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func uploadOnDay(d int, onTime bool, points int) model.Upload {
	return model.Upload{
		UploadedAt:   statsStart.AddDate(0, 0, d),
		OnTime:       onTime,
		PointsEarned: points,
	}
}

func TestAggregateEmpty(t *testing.T) {
	st := Aggregate(nil, 2)
	if st != (Stats{}) {
		t.Errorf("stats = %+v, want zero value", st)
	}
}

func TestAggregateGapResetsStreak(t *testing.T) {
	uploads := []model.Upload{
		uploadOnDay(0, true, 10),
		uploadOnDay(2, true, 10),
		uploadOnDay(4, true, 10),
		uploadOnDay(10, true, 10),
	}

	st := Aggregate(uploads, 2)
	if st.LongestStreak != 3 {
		t.Errorf("longest = %d, want 3", st.LongestStreak)
	}
	if st.CurrentStreak != 1 {
		t.Errorf("current = %d, want 1", st.CurrentStreak)
	}
	if st.TotalPoints != 40 {
		t.Errorf("total points = %d, want 40", st.TotalPoints)
	}
	if st.OnTimeCount != 4 || st.LateCount != 0 {
		t.Errorf("on time/late = %d/%d, want 4/0", st.OnTimeCount, st.LateCount)
	}
}

func TestAggregateGraceDay(t *testing.T) {
	// cadence 2 + 1 grace day allows a 3 day gap
	uploads := []model.Upload{
		uploadOnDay(0, true, 10),
		uploadOnDay(3, true, 10),
		uploadOnDay(6, true, 10),
	}

	st := Aggregate(uploads, 2)
	if st.CurrentStreak != 3 {
		t.Errorf("current = %d, want 3", st.CurrentStreak)
	}
}

func TestAggregateLateUploadResets(t *testing.T) {
	uploads := []model.Upload{
		uploadOnDay(0, true, 10),
		uploadOnDay(1, true, 10),
		uploadOnDay(2, false, 2),
		uploadOnDay(3, true, 10),
	}

	st := Aggregate(uploads, 1)
	if st.LongestStreak != 2 {
		t.Errorf("longest = %d, want 2", st.LongestStreak)
	}
	if st.CurrentStreak != 1 {
		t.Errorf("current = %d, want 1", st.CurrentStreak)
	}
	if st.OnTimeCount != 3 || st.LateCount != 1 {
		t.Errorf("on time/late = %d/%d, want 3/1", st.OnTimeCount, st.LateCount)
	}
	if st.TotalPoints != 32 {
		t.Errorf("total points = %d, want 32", st.TotalPoints)
	}
}

func TestAggregateEndsOnLateUpload(t *testing.T) {
	uploads := []model.Upload{
		uploadOnDay(0, true, 10),
		uploadOnDay(1, false, 2),
	}

	st := Aggregate(uploads, 1)
	if st.CurrentStreak != 0 {
		t.Errorf("current = %d, want 0", st.CurrentStreak)
	}
	if st.LongestStreak != 1 {
		t.Errorf("longest = %d, want 1", st.LongestStreak)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	inOrder := []model.Upload{
		uploadOnDay(0, true, 10),
		uploadOnDay(2, true, 10),
		uploadOnDay(4, false, 2),
		uploadOnDay(6, true, 10),
		uploadOnDay(8, true, 10),
	}
	shuffled := []model.Upload{inOrder[3], inOrder[0], inOrder[4], inOrder[2], inOrder[1]}

	a := Aggregate(inOrder, 2)
	b := Aggregate(shuffled, 2)
	if a != b {
		t.Errorf("aggregate differs by input order: %+v vs %+v", a, b)
	}
	if a.CurrentStreak != 2 || a.LongestStreak != 2 {
		t.Errorf("current/longest = %d/%d, want 2/2", a.CurrentStreak, a.LongestStreak)
	}

	// input slice must not be reordered
	if !shuffled[0].UploadedAt.Equal(inOrder[3].UploadedAt) {
		t.Error("Aggregate modified its input")
	}
}
