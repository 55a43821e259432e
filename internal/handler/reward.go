package handler

import (
	"log/slog"
	"net/http"

	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/store"
)

type RewardHandler struct {
	ledger  *store.LedgerStore
	rewards *store.RewardStore
	logger  *slog.Logger
}

func NewRewardHandler(ledger *store.LedgerStore, rewards *store.RewardStore, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{ledger: ledger, rewards: rewards, logger: logger}
}

// Balance handles GET /api/balance.
func (h *RewardHandler) Balance(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	balance, err := h.ledger.Balance(uid)
	if err != nil {
		h.logger.Error("get balance", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// LockedBalance handles GET /api/balance/locked.
func (h *RewardHandler) LockedBalance(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())
	if famID == "" {
		writeError(w, http.StatusNotFound, "not in a family")
		return
	}
	uid := auth.UID(r.Context())
	locked, err := h.ledger.Locked(famID, uid)
	if err != nil {
		h.logger.Error("get locked balance", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, locked)
}

// Rewards handles GET /api/rewards: the member's recent reward results.
func (h *RewardHandler) Rewards(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	results, err := h.rewards.ListByUID(uid, 30)
	if err != nil {
		h.logger.Error("list rewards", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Ledger handles GET /api/ledger: the member's recent ledger entries.
func (h *RewardHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	entries, err := h.ledger.ListByUID(uid, 100)
	if err != nil {
		h.logger.Error("list ledger", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
