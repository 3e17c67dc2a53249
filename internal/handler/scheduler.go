package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

type OnceRunner interface {
	RunOnce(ctx context.Context, now time.Time, enabled bool) (model.Report, error)
}

// SchedulerHandler exposes a single reminder pass to external triggers
// such as cron or a platform scheduler.
type SchedulerHandler struct {
	runner  OnceRunner
	enabled func() bool
	logger  *slog.Logger
}

func NewSchedulerHandler(runner OnceRunner, enabled func() bool, logger *slog.Logger) *SchedulerHandler {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &SchedulerHandler{runner: runner, enabled: enabled, logger: logger}
}

func (h *SchedulerHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunOnce(r.Context(), time.Now().UTC(), h.enabled())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if report.Attempts == nil {
		report.Attempts = []model.NotificationAttempt{}
	}
	writeJSON(w, http.StatusOK, report)
}
