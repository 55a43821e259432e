package model

import "time"

// Ledger entry kinds. The treasury and balance aggregates are materialized
// sums over these entries.
const (
	EntryStepReward   = "STEP_REWARD"
	EntryFamilyShare  = "FAMILY_SHARE"
	EntryLockedCredit = "LOCKED_CREDIT"
	EntryLockRelease  = "LOCK_RELEASE"
	EntrySpentUSD     = "SPENT_USD"
	EntryGoalFund     = "GOAL_FUND"
	EntryGoalWithdraw = "GOAL_WITHDRAW"
	EntryStake        = "STAKE"
	EntryStakeAPR     = "STAKE_APR"
	EntryStakeClaim   = "STAKE_CLAIM"
	EntryEarlyPenalty = "EARLY_PENALTY"
	EntryUnstake      = "UNSTAKE"
)

// LedgerEntry is append-only: never mutated, never deleted. Entries carrying
// an idempotency key are inserted at most once; replays are silently dropped
// together with their paired balance increment.
type LedgerEntry struct {
	ID             int64     `json:"id"`
	FamilyID       *string   `json:"family_id"`
	UID            *string   `json:"uid"`
	Kind           string    `json:"kind"`
	Amount         float64   `json:"amount"`
	USDValue       *float64  `json:"usd_value"`
	Day            string    `json:"day"`
	Ref            string    `json:"ref,omitempty"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Balance is a per-user aggregate, mutated only via increments.
type Balance struct {
	UID               string    `json:"uid"`
	Personal          float64   `json:"personal"`
	FamilyContributed float64   `json:"family_contributed"`
	TotalEarned       float64   `json:"total_earned"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LockedBalance holds a minor's points until a guardian releases them.
// Monotonically non-negative.
type LockedBalance struct {
	FamilyID  string    `json:"family_id"`
	UID       string    `json:"uid"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Treasury struct {
	FamilyID  string    `json:"family_id"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
