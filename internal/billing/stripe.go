// Package billing syncs family subscription plans with Stripe. The plan is
// the only thing the rest of the system reads; everything else (invoices,
// proration, cancellation timing) stays on Stripe's side.
package billing

import (
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/stridefam/stridefam/internal/model"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	PlusPriceID   string
	ProPriceID    string
	SuccessURL    string
	CancelURL     string
}

// Enabled reports whether billing is configured at all. Without keys every
// family stays on the free plan.
func (c Config) Enabled() bool {
	return c.SecretKey != ""
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// CreateCustomer creates a Stripe customer for a family and returns its ID.
func (c *Client) CreateCustomer(familyID, familyName string) (string, error) {
	params := &stripe.CustomerParams{
		Name: stripe.String(familyName),
		Metadata: map[string]string{
			"family_id": familyID,
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession starts a subscription checkout for the given plan.
// The family id rides along as the client reference so the webhook can
// attribute the completed session.
func (c *Client) CreateCheckoutSession(customerID, familyID string, plan model.Plan) (string, error) {
	priceID := c.PriceIDForPlan(plan)
	if priceID == "" {
		return "", fmt.Errorf("no price configured for plan %q", plan)
	}

	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(familyID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"family_id": familyID,
				"plan":      string(plan),
			},
		},
		SuccessURL: stripe.String(c.cfg.SuccessURL),
		CancelURL:  stripe.String(c.cfg.CancelURL),
	}
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateBillingPortalSession returns a portal URL where the owner manages
// the subscription.
func (c *Client) CreateBillingPortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

func (c *Client) PriceIDForPlan(plan model.Plan) string {
	switch plan {
	case model.PlanPlus:
		return c.cfg.PlusPriceID
	case model.PlanPro:
		return c.cfg.ProPriceID
	default:
		return ""
	}
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
