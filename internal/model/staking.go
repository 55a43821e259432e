package model

import "time"

type PositionStatus string

const (
	PositionActive PositionStatus = "active"
	PositionClosed PositionStatus = "closed"
)

// StakingPool is admin-owned config, read-only to the engine.
type StakingPool struct {
	ID                  string  `json:"id"`
	Symbol              string  `json:"symbol"`
	LockMonths          int     `json:"lock_months"`
	MinAmount           float64 `json:"min_amount"`
	MaxAmount           float64 `json:"max_amount"`
	BaseAprBps          int     `json:"base_apr_bps"`
	SubscribersOnly     []Plan  `json:"subscribers_only,omitempty"`
	CompoundingAllowed  bool    `json:"compounding_allowed"`
	EarlyExitPenaltyBps int     `json:"early_exit_penalty_bps"`
	Enabled             bool    `json:"enabled"`
}

// StakingPosition: if Compound, Accrued stays 0 and Amount grows daily;
// otherwise Amount is fixed and Accrued grows. UnlockAt is set at open time
// and never changes.
type StakingPosition struct {
	ID       string         `json:"id"`
	UID      string         `json:"uid"`
	PoolID   string         `json:"pool_id"`
	Amount   float64        `json:"amount"`
	AprBps   int            `json:"apr_bps"`
	Accrued  float64        `json:"accrued"`
	Compound bool           `json:"compound"`
	Since    time.Time      `json:"since"`
	UnlockAt *time.Time     `json:"unlock_at"`
	Status   PositionStatus `json:"status"`
	ClosedAt *time.Time     `json:"closed_at"`
}

// Locked reports whether the position is still inside its lock window.
func (p *StakingPosition) Locked(now time.Time) bool {
	return p.UnlockAt != nil && now.Before(*p.UnlockAt)
}
