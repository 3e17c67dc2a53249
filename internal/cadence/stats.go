package cadence

import (
	"sort"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

type Stats struct {
	TotalPoints   int `json:"total_points"`
	OnTimeCount   int `json:"on_time_count"`
	LateCount     int `json:"late_count"`
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`
}

// Aggregate folds an upload history into totals and streaks. The input
// slice is not modified.
//
// A streak is a run of on-time uploads where each gap from the previous
// upload is at most cadenceDays+StreakGraceDays days. A late upload resets
// the run and does not count toward it.
func Aggregate(uploads []model.Upload, cadenceDays int) Stats {
	var st Stats
	if len(uploads) == 0 {
		return st
	}

	sorted := make([]model.Upload, len(uploads))
	copy(sorted, uploads)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UploadedAt.Before(sorted[j].UploadedAt)
	})

	maxGap := time.Duration(cadenceDays+model.StreakGraceDays) * day

	run := 0
	for i, u := range sorted {
		st.TotalPoints += u.PointsEarned

		if !u.OnTime {
			st.LateCount++
			run = 0
			continue
		}
		st.OnTimeCount++

		if i > 0 && u.UploadedAt.Sub(sorted[i-1].UploadedAt) > maxGap {
			run = 0
		}
		run++
		if run > st.LongestStreak {
			st.LongestStreak = run
		}
	}
	st.CurrentStreak = run

	return st
}
