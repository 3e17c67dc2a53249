package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cadence/internal/auth"
	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/service"
)

type ChallengeHandler struct {
	svc    *service.ChallengeService
	logger *slog.Logger
}

func NewChallengeHandler(svc *service.ChallengeService, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{svc: svc, logger: logger}
}

func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateChallengeInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.svc.Create(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := h.svc.Get(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Today reports whether the caller has uploaded today and how far away the
// next deadline is. An RFC 3339 "at" query parameter overrides the clock.
func (h *ChallengeHandler) Today(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	now, err := queryTime(r, "at")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.svc.GetTodayStatus(r.Context(), auth.UserID(r.Context()), id, now)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *ChallengeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	st, err := h.svc.GetStats(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *ChallengeHandler) RecomputeDeadline(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	deadline, err := h.svc.RecomputeDeadline(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"next_upload_deadline": deadline})
}

type uploadRequest struct {
	UploadedAt *time.Time `json:"uploaded_at"`
}

func (h *ChallengeHandler) RecordUpload(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req uploadRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var at time.Time
	if req.UploadedAt != nil {
		at = *req.UploadedAt
	}

	u, err := h.svc.RecordUpload(r.Context(), auth.UserID(r.Context()), id, at)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *ChallengeHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req model.NotificationSettings
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.svc.UpdateNotificationSettings(r.Context(), auth.UserID(r.Context()), id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type statusRequest struct {
	Status model.ChallengeStatus `json:"status"`
}

func (h *ChallengeHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.svc.UpdateStatus(r.Context(), auth.UserID(r.Context()), id, req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: want RFC 3339 timestamp", key)
	}
	return t.UTC(), nil
}
