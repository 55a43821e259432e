package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/store"
)

// Notifier fans domain events out to member devices. Delivery is best
// effort: failures are logged and never propagated to the caller, expired
// subscriptions are pruned, and everything else is retried briefly.
type Notifier struct {
	service  *Service
	push     *store.PushStore
	families *store.FamilyStore
	logger   *slog.Logger
}

func NewNotifier(service *Service, pushStore *store.PushStore, families *store.FamilyStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		service:  service,
		push:     pushStore,
		families: families,
		logger:   logger,
	}
}

// ApprovalRequested notifies the family owner that a member's operation is
// parked. approveURL/rejectURL carry signed one-tap decision tokens.
func (n *Notifier) ApprovalRequested(ctx context.Context, req *model.ApprovalRequest, approveURL, rejectURL string) {
	fam, err := n.families.GetByID(req.FamilyID)
	if err != nil || fam == nil {
		n.logger.Error("approval notify: load family", "family_id", req.FamilyID, "error", err)
		return
	}

	payload := Payload{
		Title: "Approval needed",
		Body:  fmt.Sprintf("%s wants to run a %s worth $%.2f", req.UID, req.Type, req.USDValue),
		URL:   approveURL,
		Tag:   "approval-" + req.ID,
	}
	n.sendToUser(ctx, fam.OwnerUID, payload)
	_ = rejectURL // carried in the notification data by richer clients
}

// ApprovalDecided notifies the requester of the verdict.
func (n *Notifier) ApprovalDecided(ctx context.Context, req *model.ApprovalRequest) {
	verb := "rejected"
	if req.Status == model.ApprovalApproved {
		verb = "approved"
	}
	n.sendToUser(ctx, req.UID, Payload{
		Title: "Request " + verb,
		Body:  fmt.Sprintf("Your %s request was %s", req.Type, verb),
		URL:   "/approvals",
		Tag:   "approval-" + req.ID,
	})
}

// StakeMaturity reminds a position owner their lock ends soon. The sent-log
// keeps each threshold to at most one reminder per position.
func (n *Notifier) StakeMaturity(ctx context.Context, pos *model.StakingPosition, threshold string) {
	refID := fmt.Sprintf("%s_%s", pos.ID, threshold)
	sent, err := n.push.WasSent(model.NotifTypeStakeMaturity, refID)
	if err != nil {
		n.logger.Error("maturity notify: check sent", "position_id", pos.ID, "error", err)
		return
	}
	if sent {
		return
	}

	body := "Your staking position unlocks in 7 days"
	if threshold == "1d" {
		body = "Your staking position unlocks tomorrow"
	}
	n.sendToUser(ctx, pos.UID, Payload{
		Title: "Stake maturing",
		Body:  body,
		URL:   "/staking",
		Tag:   "maturity-" + refID,
	})

	if err := n.push.RecordSent(model.NotifTypeStakeMaturity, refID); err != nil {
		n.logger.Error("maturity notify: record sent", "position_id", pos.ID, "error", err)
	}
}

// LockRelease tells a minor their guardian released vault points.
func (n *Notifier) LockRelease(ctx context.Context, uid string, amount float64) {
	n.sendToUser(ctx, uid, Payload{
		Title: "Points released",
		Body:  fmt.Sprintf("%.4f points moved to your balance", amount),
		URL:   "/balance",
		Tag:   "lock-release",
	})
}

func (n *Notifier) sendToUser(ctx context.Context, uid string, payload Payload) {
	subs, err := n.push.ListByUID(uid)
	if err != nil {
		n.logger.Error("push: list subscriptions", "uid", uid, "error", err)
		return
	}

	for i := range subs {
		sub := subs[i]
		backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			err := n.service.Send(&sub, payload)
			if err != nil && !errors.Is(err, ErrExpired) {
				return retry.RetryableError(err)
			}
			return err
		})
		if errors.Is(err, ErrExpired) {
			if err := n.push.DeleteByEndpoint(sub.Endpoint); err != nil {
				n.logger.Error("push: prune expired subscription", "uid", uid, "error", err)
			}
			continue
		}
		if err != nil {
			n.logger.Error("push: send", "uid", uid, "tag", payload.Tag, "error", err)
		}
	}
}
