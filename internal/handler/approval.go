package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/stridefam/stridefam/internal/approval"
	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/push"
	"github.com/stridefam/stridefam/internal/staking"
	"github.com/stridefam/stridefam/internal/store"
	"github.com/stridefam/stridefam/internal/websocket"
)

// OperationHandler is the front door for gated financial operations. Every
// operation passes the approval gate; allowed ones execute immediately,
// parked ones wait for the family owner. STAKE, GOAL_WITHDRAW and SPEND
// execute in-platform, the rest are settled by external venues after
// clearance.
type OperationHandler struct {
	gate      *approval.Gate
	tokens    *approval.TokenIssuer
	approvals *store.ApprovalStore
	families  *store.FamilyStore
	members   *store.MemberStore
	goals     *store.GoalStore
	ledger    *store.LedgerStore
	staking   *staking.Service
	notifier  *push.Notifier
	hub       *websocket.Hub
	baseURL   string
	logger    *slog.Logger
}

func NewOperationHandler(
	gate *approval.Gate,
	tokens *approval.TokenIssuer,
	approvals *store.ApprovalStore,
	families *store.FamilyStore,
	members *store.MemberStore,
	goals *store.GoalStore,
	ledger *store.LedgerStore,
	stakingSvc *staking.Service,
	notifier *push.Notifier,
	hub *websocket.Hub,
	baseURL string,
	logger *slog.Logger,
) *OperationHandler {
	return &OperationHandler{
		gate:      gate,
		tokens:    tokens,
		approvals: approvals,
		families:  families,
		members:   members,
		goals:     goals,
		ledger:    ledger,
		staking:   stakingSvc,
		notifier:  notifier,
		hub:       hub,
		baseURL:   baseURL,
		logger:    logger,
	}
}

type operationRequest struct {
	Type         model.OperationType `json:"type"`
	Payload      json.RawMessage     `json:"payload"`
	EstimatedUSD float64             `json:"estimated_usd"`
}

// Submit handles POST /api/operations.
func (h *OperationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EstimatedUSD < 0 {
		writeError(w, http.StatusBadRequest, "estimated_usd cannot be negative")
		return
	}
	if _, err := model.DecodePayload(req.Type, req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uid := auth.UID(r.Context())
	verdict, err := h.gate.Check(uid, req.Type, req.Payload, req.EstimatedUSD)
	if err != nil {
		h.logger.Error("gate check", "uid", uid, "type", req.Type, "error", err)
		writeDomainError(w, err)
		return
	}

	if !verdict.Allowed {
		h.notifyGuardian(r, verdict.Request)
		h.hub.Broadcast(websocket.NewMessage(websocket.EntityApproval, "created", verdict.Request.ID,
			map[string]any{"family_id": verdict.Request.FamilyID}))
		writeJSON(w, http.StatusAccepted, verdict)
		return
	}

	result, err := h.execute(uid, req.Type, req.Payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": true, "result": result})
}

type spendRequest struct {
	Amount   float64 `json:"amount"`
	USDValue float64 `json:"usd_value"`
	Ref      string  `json:"ref"`
}

// Spend handles POST /api/spend. A direct point spend is a gated financial
// operation like any other: minors and over-limit teens park here too. The
// USD value settles into the daily spending total once the spend executes.
func (h *OperationHandler) Spend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount <= 0 || req.USDValue < 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	payload, err := json.Marshal(model.SpendPayload{Amount: req.Amount, USDValue: req.USDValue, Ref: req.Ref})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	uid := auth.UID(r.Context())
	verdict, err := h.gate.Check(uid, model.OpSpend, payload, req.USDValue)
	if err != nil {
		h.logger.Error("gate check", "uid", uid, "type", model.OpSpend, "error", err)
		writeDomainError(w, err)
		return
	}

	if !verdict.Allowed {
		h.notifyGuardian(r, verdict.Request)
		h.hub.Broadcast(websocket.NewMessage(websocket.EntityApproval, "created", verdict.Request.ID,
			map[string]any{"family_id": verdict.Request.FamilyID}))
		writeJSON(w, http.StatusAccepted, verdict)
		return
	}

	result, err := h.execute(uid, model.OpSpend, payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListPending handles GET /api/approvals. Owner only.
func (h *OperationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())
	pending, err := h.approvals.ListPending(famID)
	if err != nil {
		h.logger.Error("list pending approvals", "family_id", famID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

type decideRequest struct {
	Approve bool `json:"approve"`
}

// Decide handles POST /api/approvals/{id}/decide. Owner only.
func (h *OperationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.decide(w, r, r.PathValue("id"), auth.UID(r.Context()), req.Approve)
}

// DecideByToken handles GET /api/approvals/decide?token=... — the one-tap
// path from a guardian's notification. The token binds request, guardian
// and verdict; ownership is still re-checked by the gate.
func (h *OperationHandler) DecideByToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	requestID, guardianUID, approve, err := h.tokens.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	h.decide(w, r, requestID, guardianUID, approve)
}

func (h *OperationHandler) decide(w http.ResponseWriter, r *http.Request, requestID, deciderUID string, approve bool) {
	decided, err := h.gate.Decide(requestID, deciderUID, approve)
	if err != nil {
		if !errors.Is(err, store.ErrNotOwner) && !errors.Is(err, store.ErrAlreadyDecided) {
			h.logger.Error("decide approval", "request_id", requestID, "error", err)
		}
		writeDomainError(w, err)
		return
	}
	if decided == nil {
		writeError(w, http.StatusNotFound, "approval request not found")
		return
	}

	h.notifier.ApprovalDecided(r.Context(), decided)
	h.hub.Broadcast(websocket.NewMessage(websocket.EntityApproval, "decided", decided.ID,
		map[string]any{"status": string(decided.Status)}))

	var result any
	if decided.Status == model.ApprovalApproved {
		result, err = h.execute(decided.UID, decided.Type, decided.Payload)
		if err != nil {
			// The decision stands; only the execution failed.
			h.logger.Error("execute approved operation",
				"request_id", decided.ID, "type", decided.Type, "error", err)
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": decided, "result": result})
}

// execute runs a cleared operation. NFT, SWAP and LP settle off-platform;
// clearance is all this service contributes for them.
func (h *OperationHandler) execute(uid string, op model.OperationType, payload json.RawMessage) (any, error) {
	switch op {
	case model.OpStake:
		var p model.StakePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode stake payload: %w", err)
		}
		plan, err := h.planFor(uid)
		if err != nil {
			return nil, err
		}
		pos, err := h.staking.Open(uid, plan, p.PoolID, p.Amount, p.Compound)
		if err != nil {
			return nil, err
		}
		h.hub.Broadcast(websocket.NewMessage(websocket.EntityStaking, "opened", pos.ID, nil))
		return pos, nil

	case model.OpGoalWithdraw:
		var p model.GoalWithdrawPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode goal withdraw payload: %w", err)
		}
		return h.withdrawGoal(uid, p.GoalID, p.Amount)

	case model.OpSpend:
		var p model.SpendPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode spend payload: %w", err)
		}
		if err := h.ledger.SpendPersonal(uid, p.Amount, p.USDValue, p.Ref); err != nil {
			return nil, err
		}
		return h.ledger.Balance(uid)

	default:
		return nil, nil
	}
}

func (h *OperationHandler) withdrawGoal(uid string, goalID int64, amount float64) (*model.Goal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdraw amount must be positive")
	}
	goal, err := h.goals.GetByID(goalID)
	if err != nil {
		return nil, err
	}
	if goal == nil || goal.UID != uid {
		return nil, fmt.Errorf("goal %d not found", goalID)
	}

	if err := h.goals.AddSaved(goalID, -amount); err != nil {
		return nil, err
	}
	// Goal points were earned-counted when first credited; return only moves
	// the spendable column.
	if err := h.ledger.ReturnPersonal(uid, amount, store.Entry{
		Kind: model.EntryGoalWithdraw,
		Day:  time.Now().UTC().Format("2006-01-02"),
		Ref:  strconv.FormatInt(goalID, 10),
	}); err != nil {
		return nil, err
	}
	return h.goals.GetByID(goalID)
}

func (h *OperationHandler) planFor(uid string) (model.Plan, error) {
	member, err := h.members.GetByUID(uid)
	if err != nil || member == nil {
		return model.PlanFree, fmt.Errorf("load member %q: %w", uid, err)
	}
	if member.FamilyID == nil {
		return model.PlanFree, nil
	}
	fam, err := h.families.GetByID(*member.FamilyID)
	if err != nil || fam == nil {
		return model.PlanFree, fmt.Errorf("load family: %w", err)
	}
	return fam.Plan, nil
}

func (h *OperationHandler) notifyGuardian(r *http.Request, req *model.ApprovalRequest) {
	fam, err := h.families.GetByID(req.FamilyID)
	if err != nil || fam == nil {
		h.logger.Error("load family for guardian notify", "family_id", req.FamilyID, "error", err)
		return
	}

	approveTok, err := h.tokens.Issue(req.ID, fam.OwnerUID, true)
	if err != nil {
		h.logger.Error("issue approve token", "request_id", req.ID, "error", err)
		return
	}
	rejectTok, err := h.tokens.Issue(req.ID, fam.OwnerUID, false)
	if err != nil {
		h.logger.Error("issue reject token", "request_id", req.ID, "error", err)
		return
	}

	approveURL := h.baseURL + "/api/approvals/decide?token=" + approveTok
	rejectURL := h.baseURL + "/api/approvals/decide?token=" + rejectTok
	h.notifier.ApprovalRequested(r.Context(), req, approveURL, rejectURL)
}
