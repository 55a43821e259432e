package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/store"
)

type StepsHandler struct {
	steps  *store.StepStore
	logger *slog.Logger
}

func NewStepsHandler(steps *store.StepStore, logger *slog.Logger) *StepsHandler {
	return &StepsHandler{steps: steps, logger: logger}
}

type syncStepsRequest struct {
	Day   string `json:"day"`
	Steps int    `json:"steps"`
}

// Sync handles POST /api/steps. Devices re-sync freely until the reward run
// settles the day; after that the total is immutable.
func (h *StepsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncStepsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Steps < 0 {
		writeError(w, http.StatusBadRequest, "steps cannot be negative")
		return
	}
	if _, err := time.Parse("2006-01-02", req.Day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}

	uid := auth.UID(r.Context())
	if err := h.steps.UpsertDay(uid, req.Day, req.Steps); err != nil {
		if errors.Is(err, store.ErrDayAlreadyPaid) {
			writeError(w, http.StatusConflict, "day already settled")
			return
		}
		h.logger.Error("sync steps", "uid", uid, "day", req.Day, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uid": uid, "day": req.Day, "steps": req.Steps})
}

// GetDay handles GET /api/steps/{day}.
func (h *StepsHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	day := r.PathValue("day")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}

	uid := auth.UID(r.Context())
	steps, err := h.steps.GetDay(uid, day)
	if err != nil {
		h.logger.Error("get steps", "uid", uid, "day", day, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uid": uid, "day": day, "steps": steps})
}
