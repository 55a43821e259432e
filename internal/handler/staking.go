package handler

import (
	"log/slog"
	"net/http"

	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/staking"
	"github.com/stridefam/stridefam/internal/store"
	"github.com/stridefam/stridefam/internal/websocket"
)

// StakingHandler covers the member-initiated half of the position lifecycle.
// Opens go through POST /api/operations so the approval gate sees them;
// claims and closes only return the member's own funds and skip the gate.
type StakingHandler struct {
	svc       *staking.Service
	positions *store.StakingStore
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewStakingHandler(svc *staking.Service, positions *store.StakingStore, hub *websocket.Hub, logger *slog.Logger) *StakingHandler {
	return &StakingHandler{svc: svc, positions: positions, hub: hub, logger: logger}
}

// Pools handles GET /api/staking/pools.
func (h *StakingHandler) Pools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Pools())
}

// Positions handles GET /api/staking/positions.
func (h *StakingHandler) Positions(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	positions, err := h.positions.ListByUID(uid)
	if err != nil {
		h.logger.Error("list positions", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// Claim handles POST /api/staking/positions/{id}/claim.
func (h *StakingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	id := r.PathValue("id")

	claimed, err := h.svc.Claim(uid, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityBalance, "updated", uid, nil))
	writeJSON(w, http.StatusOK, map[string]any{"position_id": id, "claimed": claimed})
}

// Close handles POST /api/staking/positions/{id}/close: the penalty-free
// path, valid once the lock has passed.
func (h *StakingHandler) Close(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	id := r.PathValue("id")

	returned, err := h.svc.Close(uid, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityStaking, "closed", id, nil))
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityBalance, "updated", uid, nil))
	writeJSON(w, http.StatusOK, map[string]any{"position_id": id, "returned": returned})
}

// CloseEarly handles POST /api/staking/positions/{id}/close-early.
func (h *StakingHandler) CloseEarly(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	id := r.PathValue("id")

	returned, penalty, err := h.svc.CloseEarly(uid, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityStaking, "closed", id, nil))
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityBalance, "updated", uid, nil))
	writeJSON(w, http.StatusOK, map[string]any{
		"position_id": id,
		"returned":    returned,
		"penalty":     penalty,
	})
}
