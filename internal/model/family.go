package model

import "time"

// Plan is the family subscription tier. It weights step rewards and gates
// staking pools.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPlus Plan = "plus"
	PlanPro  Plan = "pro"
)

type Family struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	OwnerUID         string    `json:"owner_uid"`
	Plan             Plan      `json:"plan"`
	StripeCustomerID string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
