package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cadence/internal/auth"
	"github.com/dukerupert/cadence/internal/service"
)

// MeHandler manages the caller's reminder address.
type MeHandler struct {
	svc    *service.ChallengeService
	logger *slog.Logger
}

func NewMeHandler(svc *service.ChallengeService, logger *slog.Logger) *MeHandler {
	return &MeHandler{svc: svc, logger: logger}
}

func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Me(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type meRequest struct {
	Email string `json:"email"`
}

func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req meRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	u, err := h.svc.SetEmail(r.Context(), auth.UserID(r.Context()), req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
