package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type OperationType string

const (
	OpNFT          OperationType = "NFT"
	OpSwap         OperationType = "SWAP"
	OpLP           OperationType = "LP"
	OpStake        OperationType = "STAKE"
	OpGoalWithdraw OperationType = "GOAL_WITHDRAW"
	OpSpend        OperationType = "SPEND"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is created when the gate parks a financial operation.
// Only the family owner may decide it; a decided request is terminal.
type ApprovalRequest struct {
	ID        string         `json:"id"`
	FamilyID  string         `json:"family_id"`
	UID       string         `json:"uid"`
	Type      OperationType  `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	USDValue  float64        `json:"usd_value"`
	Status    ApprovalStatus `json:"status"`
	DecidedBy *string        `json:"decided_by"`
	DecidedAt *time.Time     `json:"decided_at"`
	CreatedAt time.Time      `json:"created_at"`
}

// One payload shape per operation type so guardian-side rendering stays
// type-safe.

type NFTPayload struct {
	CollectionID string  `json:"collection_id"`
	TokenID      string  `json:"token_id"`
	PriceUSD     float64 `json:"price_usd"`
}

type SwapPayload struct {
	FromSymbol string  `json:"from_symbol"`
	ToSymbol   string  `json:"to_symbol"`
	Amount     float64 `json:"amount"`
}

type LPPayload struct {
	PoolID  string  `json:"pool_id"`
	AmountA float64 `json:"amount_a"`
	AmountB float64 `json:"amount_b"`
}

type StakePayload struct {
	PoolID   string  `json:"pool_id"`
	Amount   float64 `json:"amount"`
	Compound bool    `json:"compound"`
}

type GoalWithdrawPayload struct {
	GoalID int64   `json:"goal_id"`
	Amount float64 `json:"amount"`
}

type SpendPayload struct {
	Amount   float64 `json:"amount"`
	USDValue float64 `json:"usd_value"`
	Ref      string  `json:"ref"`
}

// DecodePayload parses raw into the payload struct for the given operation
// type. Unknown types are an error, not an untyped blob.
func DecodePayload(op OperationType, raw json.RawMessage) (any, error) {
	var dst any
	switch op {
	case OpNFT:
		dst = &NFTPayload{}
	case OpSwap:
		dst = &SwapPayload{}
	case OpLP:
		dst = &LPPayload{}
	case OpStake:
		dst = &StakePayload{}
	case OpGoalWithdraw:
		dst = &GoalWithdrawPayload{}
	case OpSpend:
		dst = &SpendPayload{}
	default:
		return nil, fmt.Errorf("unknown operation type %q", op)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", op, err)
	}
	return dst, nil
}
