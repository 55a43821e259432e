package handler

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/push"
	"github.com/stridefam/stridefam/internal/store"
	"github.com/stridefam/stridefam/internal/websocket"
)

type FamilyHandler struct {
	families *store.FamilyStore
	members  *store.MemberStore
	ledger   *store.LedgerStore
	notifier *push.Notifier
	hub      *websocket.Hub
	logger   *slog.Logger
}

func NewFamilyHandler(families *store.FamilyStore, members *store.MemberStore, ledger *store.LedgerStore, notifier *push.Notifier, hub *websocket.Hub, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{
		families: families,
		members:  members,
		ledger:   ledger,
		notifier: notifier,
		hub:      hub,
		logger:   logger,
	}
}

type createFamilyRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/families. The creator becomes the owner; solo
// members can create at most one family.
func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	if auth.FamilyID(r.Context()) != "" {
		writeError(w, http.StatusConflict, "already in a family")
		return
	}

	var req createFamilyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	uid := auth.UID(r.Context())
	fam, err := h.families.Create(req.Name, uid)
	if err != nil {
		h.logger.Error("create family", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.members.SetFamily(uid, &fam.ID); err != nil {
		h.logger.Error("attach owner to family", "family_id", fam.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, fam)
}

// Get handles GET /api/family.
func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())
	if famID == "" {
		writeError(w, http.StatusNotFound, "not in a family")
		return
	}
	fam, err := h.families.GetByID(famID)
	if err != nil || fam == nil {
		h.logger.Error("get family", "family_id", famID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, fam)
}

// ListMembers handles GET /api/family/members.
func (h *FamilyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())
	if famID == "" {
		writeError(w, http.StatusNotFound, "not in a family")
		return
	}
	members, err := h.members.ListByFamily(famID)
	if err != nil {
		h.logger.Error("list members", "family_id", famID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type createMemberRequest struct {
	UID              string  `json:"uid"`
	Name             string  `json:"name"`
	AgeYears         *int    `json:"age_years"`
	SpendingLimitUSD float64 `json:"spending_limit_usd"`
	PIN              string  `json:"pin"`
}

// CreateMember handles POST /api/family/members. Owner only.
func (h *FamilyHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())

	var req createMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "uid and name are required")
		return
	}
	if req.AgeYears != nil && (*req.AgeYears < 0 || *req.AgeYears > 120) {
		writeError(w, http.StatusBadRequest, "age_years out of range")
		return
	}
	if req.SpendingLimitUSD < 0 {
		writeError(w, http.StatusBadRequest, "spending_limit_usd cannot be negative")
		return
	}

	member, err := h.members.Create(req.UID, req.Name, &famID, req.AgeYears, req.SpendingLimitUSD)
	if err != nil {
		h.logger.Error("create member", "uid", req.UID, "error", err)
		writeError(w, http.StatusConflict, "member already exists")
		return
	}
	if req.PIN != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
		if err == nil {
			err = h.members.SetPIN(req.UID, string(hash))
		}
		if err != nil {
			h.logger.Error("set member pin", "uid", req.UID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, member)
}

type spendingLimitRequest struct {
	SpendingLimitUSD float64 `json:"spending_limit_usd"`
}

// SetSpendingLimit handles PUT /api/family/members/{uid}/limit. Owner only.
func (h *FamilyHandler) SetSpendingLimit(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	member, err := h.members.GetByUID(uid)
	if err != nil {
		h.logger.Error("get member", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if member == nil || member.FamilyID == nil || *member.FamilyID != auth.FamilyID(r.Context()) {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	var req spendingLimitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SpendingLimitUSD < 0 {
		writeError(w, http.StatusBadRequest, "spending_limit_usd cannot be negative")
		return
	}
	if err := h.members.SetSpendingLimit(uid, req.SpendingLimitUSD); err != nil {
		h.logger.Error("set spending limit", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Treasury handles GET /api/family/treasury.
func (h *FamilyHandler) Treasury(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())
	if famID == "" {
		writeError(w, http.StatusNotFound, "not in a family")
		return
	}
	balance, err := h.ledger.TreasuryBalance(famID)
	if err != nil {
		h.logger.Error("treasury balance", "family_id", famID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"family_id": famID, "balance": balance})
}

// Ledger handles GET /api/family/ledger.
func (h *FamilyHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())
	if famID == "" {
		writeError(w, http.StatusNotFound, "not in a family")
		return
	}
	entries, err := h.ledger.ListByFamily(famID, 100)
	if err != nil {
		h.logger.Error("family ledger", "family_id", famID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type releaseLockedRequest struct {
	Amount float64 `json:"amount"`
}

// ReleaseLocked handles POST /api/family/members/{uid}/release. Owner only:
// moves points from the member's locked vault to their spendable balance.
func (h *FamilyHandler) ReleaseLocked(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())
	uid := r.PathValue("uid")

	var req releaseLockedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.ledger.ReleaseLocked(famID, uid, req.Amount); err != nil {
		h.logger.Error("release locked", "family_id", famID, "uid", uid, "error", err)
		writeDomainError(w, err)
		return
	}

	h.notifier.LockRelease(r.Context(), uid, req.Amount)
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityBalance, "updated", uid, nil))

	locked, err := h.ledger.Locked(famID, uid)
	if err != nil {
		h.logger.Error("reload locked balance", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, locked)
}
