package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/store"
)

// GoalHandler manages savings goals. Funding moves spendable points into a
// goal; withdrawing goes through POST /api/operations because GOAL_WITHDRAW
// is a gated operation type.
type GoalHandler struct {
	goals  *store.GoalStore
	ledger *store.LedgerStore
	logger *slog.Logger
}

func NewGoalHandler(goals *store.GoalStore, ledger *store.LedgerStore, logger *slog.Logger) *GoalHandler {
	return &GoalHandler{goals: goals, ledger: ledger, logger: logger}
}

type createGoalRequest struct {
	Name   string  `json:"name"`
	Target float64 `json:"target"`
}

// Create handles POST /api/goals.
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Target <= 0 {
		writeError(w, http.StatusBadRequest, "name and positive target are required")
		return
	}

	uid := auth.UID(r.Context())
	goal, err := h.goals.Create(uid, req.Name, req.Target)
	if err != nil {
		h.logger.Error("create goal", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

// List handles GET /api/goals.
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	goals, err := h.goals.ListByUID(uid)
	if err != nil {
		h.logger.Error("list goals", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

type fundGoalRequest struct {
	Amount float64 `json:"amount"`
}

// Fund handles POST /api/goals/{id}/fund.
func (h *GoalHandler) Fund(w http.ResponseWriter, r *http.Request) {
	goalID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	var req fundGoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	uid := auth.UID(r.Context())
	goal, err := h.goals.GetByID(goalID)
	if err != nil {
		h.logger.Error("get goal", "goal_id", goalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if goal == nil || goal.UID != uid {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}

	if err := h.ledger.DebitPersonal(uid, req.Amount, store.Entry{
		Kind: model.EntryGoalFund,
		Day:  time.Now().UTC().Format("2006-01-02"),
		Ref:  strconv.FormatInt(goalID, 10),
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.goals.AddSaved(goalID, req.Amount); err != nil {
		h.logger.Error("add saved", "goal_id", goalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	goal, err = h.goals.GetByID(goalID)
	if err != nil {
		h.logger.Error("reload goal", "goal_id", goalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// Delete handles DELETE /api/goals/{id}. Only empty goals can be deleted;
// saved points must be withdrawn first.
func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	goalID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	uid := auth.UID(r.Context())
	goal, err := h.goals.GetByID(goalID)
	if err != nil {
		h.logger.Error("get goal", "goal_id", goalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if goal == nil || goal.UID != uid {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}
	if goal.Saved > 0 {
		writeError(w, http.StatusConflict, "goal still holds points")
		return
	}

	if err := h.goals.Delete(goalID); err != nil {
		h.logger.Error("delete goal", "goal_id", goalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
