package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/store"
)

// Handler exposes checkout, the billing portal and the Stripe webhook.
// Checkout and portal are owner-only; the webhook authenticates itself via
// signature.
type Handler struct {
	client   *Client
	families *store.FamilyStore
	logger   *slog.Logger
}

func NewHandler(client *Client, families *store.FamilyStore, logger *slog.Logger) *Handler {
	return &Handler{client: client, families: families, logger: logger}
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// Checkout handles POST /api/billing/checkout. Owner only.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	plan := model.Plan(req.Plan)
	if plan != model.PlanPlus && plan != model.PlanPro {
		jsonError(w, http.StatusBadRequest, "plan must be plus or pro")
		return
	}

	famID := auth.FamilyID(r.Context())
	fam, err := h.families.GetByID(famID)
	if err != nil || fam == nil {
		h.logger.Error("load family for checkout", "family_id", famID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	customerID := fam.StripeCustomerID
	if customerID == "" {
		customerID, err = h.client.CreateCustomer(fam.ID, fam.Name)
		if err != nil {
			h.logger.Error("create customer", "family_id", famID, "error", err)
			jsonError(w, http.StatusBadGateway, "billing provider unavailable")
			return
		}
		if err := h.families.SetStripeCustomer(fam.ID, customerID); err != nil {
			h.logger.Error("save customer id", "family_id", famID, "error", err)
			jsonError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	url, err := h.client.CreateCheckoutSession(customerID, fam.ID, plan)
	if err != nil {
		h.logger.Error("create checkout session", "family_id", famID, "error", err)
		jsonError(w, http.StatusBadGateway, "billing provider unavailable")
		return
	}
	writeBillingJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Portal handles POST /api/billing/portal. Owner only.
func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	famID := auth.FamilyID(r.Context())
	fam, err := h.families.GetByID(famID)
	if err != nil || fam == nil || fam.StripeCustomerID == "" {
		jsonError(w, http.StatusNotFound, "no billing account")
		return
	}

	url, err := h.client.CreateBillingPortalSession(fam.StripeCustomerID, h.client.cfg.SuccessURL)
	if err != nil {
		h.logger.Error("create portal session", "family_id", famID, "error", err)
		jsonError(w, http.StatusBadGateway, "billing provider unavailable")
		return
	}
	writeBillingJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Webhook handles POST /webhooks/stripe.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.client.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(event)
	case "customer.subscription.updated":
		h.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(event)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCheckoutCompleted(event stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.logger.Error("webhook: unmarshal checkout session", "error", err)
		return
	}
	famID := sess.ClientReferenceID
	if famID == "" {
		h.logger.Error("webhook: checkout session missing client reference")
		return
	}

	if sess.Customer != nil {
		if err := h.families.SetStripeCustomer(famID, sess.Customer.ID); err != nil {
			h.logger.Error("webhook: save customer id", "family_id", famID, "error", err)
		}
	}

	plan := model.Plan(sess.Metadata["plan"])
	if plan != model.PlanPlus && plan != model.PlanPro {
		h.logger.Error("webhook: checkout session missing plan", "family_id", famID)
		return
	}
	if err := h.families.SetPlan(famID, plan); err != nil {
		h.logger.Error("webhook: set plan", "family_id", famID, "error", err)
		return
	}
	h.logger.Info("plan activated", "family_id", famID, "plan", plan)
}

func (h *Handler) handleSubscriptionUpdated(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("webhook: unmarshal subscription", "error", err)
		return
	}

	// A lapsed or unpaid subscription downgrades to free; reactivation is
	// re-applied from the metadata plan.
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		plan := model.Plan(sub.Metadata["plan"])
		if plan == model.PlanPlus || plan == model.PlanPro {
			h.setPlanByCustomer(sub, plan)
		}
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired:
		h.setPlanByCustomer(sub, model.PlanFree)
	}
}

func (h *Handler) handleSubscriptionDeleted(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("webhook: unmarshal subscription", "error", err)
		return
	}
	h.setPlanByCustomer(sub, model.PlanFree)
}

func (h *Handler) setPlanByCustomer(sub stripe.Subscription, plan model.Plan) {
	if sub.Customer == nil {
		return
	}
	fam, err := h.families.GetByStripeCustomer(sub.Customer.ID)
	if err != nil || fam == nil {
		h.logger.Error("webhook: family for customer not found", "customer_id", sub.Customer.ID, "error", err)
		return
	}
	if fam.Plan == plan {
		return
	}
	if err := h.families.SetPlan(fam.ID, plan); err != nil {
		h.logger.Error("webhook: set plan", "family_id", fam.ID, "error", err)
		return
	}
	h.logger.Info("plan changed", "family_id", fam.ID, "plan", plan)
}

func writeBillingJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeBillingJSON(w, status, map[string]string{"error": msg})
}
