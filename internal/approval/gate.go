// Package approval gates financial operations behind guardian consent.
// Minors always need a guardian's decision; teens only when a spend pushes
// past their daily USD limit. The gate fails closed: when an operation needs
// approval and no family exists to provide it, the operation is refused.
package approval

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/store"
)

// ChildAgeLimit mirrors the reward engine's minor threshold; under it every
// financial operation needs a guardian.
const ChildAgeLimit = 14

// Verdict is the gate's answer for one operation attempt.
type Verdict struct {
	Allowed bool                   `json:"allowed"`
	Request *model.ApprovalRequest `json:"request,omitempty"`
}

type Gate struct {
	members   *store.MemberStore
	families  *store.FamilyStore
	approvals *store.ApprovalStore
	ledger    *store.LedgerStore
	logger    *slog.Logger
}

func NewGate(members *store.MemberStore, families *store.FamilyStore, approvals *store.ApprovalStore, ledger *store.LedgerStore, logger *slog.Logger) *Gate {
	return &Gate{
		members:   members,
		families:  families,
		approvals: approvals,
		ledger:    ledger,
		logger:    logger,
	}
}

// Check decides whether uid may run op right now. When approval is needed a
// pending request is created and returned; the caller parks the operation
// until a guardian decides.
func (g *Gate) Check(uid string, op model.OperationType, payload json.RawMessage, estimatedUSD float64) (*Verdict, error) {
	member, err := g.members.GetByUID(uid)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if member == nil {
		return nil, store.ErrUnknownMember
	}

	needed, err := g.approvalNeeded(member, estimatedUSD)
	if err != nil {
		return nil, err
	}
	if !needed {
		return &Verdict{Allowed: true}, nil
	}

	if member.FamilyID == nil {
		// Nobody can approve, so the operation cannot proceed.
		return nil, store.ErrNoFamily
	}

	if _, err := model.DecodePayload(op, payload); err != nil {
		return nil, err
	}

	req, err := g.approvals.Create(*member.FamilyID, uid, op, payload, estimatedUSD)
	if err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}

	g.logger.Info("operation parked for approval",
		"uid", uid,
		"type", op,
		"usd_value", estimatedUSD,
		"request_id", req.ID)

	return &Verdict{Allowed: false, Request: req}, nil
}

// approvalNeeded applies the age and limit rules:
//   - under ChildAgeLimit: always
//   - ChildAgeLimit..17 with a positive limit: when today's settled spend
//     plus this operation would exceed it
//   - otherwise: never
func (g *Gate) approvalNeeded(member *model.Member, estimatedUSD float64) (bool, error) {
	if member.AgeYears == nil || *member.AgeYears >= 18 {
		return false, nil
	}
	if *member.AgeYears < ChildAgeLimit {
		return true, nil
	}
	if member.SpendingLimitUSD <= 0 {
		return false, nil
	}

	spent, err := g.ledger.SpentTodayUSD(member.UID, time.Now())
	if err != nil {
		return false, fmt.Errorf("sum today's spend: %w", err)
	}
	return spent+estimatedUSD > member.SpendingLimitUSD, nil
}

// Decide records a guardian's verdict. Only the family owner may decide, and
// a decided request is terminal.
func (g *Gate) Decide(requestID, deciderUID string, approve bool) (*model.ApprovalRequest, error) {
	req, err := g.approvals.GetByID(requestID)
	if err != nil {
		return nil, fmt.Errorf("load approval request: %w", err)
	}
	if req == nil {
		return nil, nil
	}

	fam, err := g.families.GetByID(req.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("load family: %w", err)
	}
	if fam == nil || fam.OwnerUID != deciderUID {
		return nil, store.ErrNotOwner
	}

	status := model.ApprovalRejected
	if approve {
		status = model.ApprovalApproved
	}
	decided, err := g.approvals.Decide(requestID, deciderUID, status)
	if err != nil {
		return nil, err
	}

	g.logger.Info("approval decided",
		"request_id", requestID,
		"decided_by", deciderUID,
		"status", status)
	return decided, nil
}
