package model

import "time"

type RewardStatus string

const (
	RewardPaid    RewardStatus = "paid"
	RewardSkipped RewardStatus = "skipped"
)

// RewardResult records one user's outcome for one day's distribution run.
// family_share + personal_share == points within 1e-4.
type RewardResult struct {
	UID           string       `json:"uid"`
	Day           string       `json:"day"`
	RunID         string       `json:"run_id"`
	Steps         int          `json:"steps"`
	WeightedSteps float64      `json:"weighted_steps"`
	Rate          float64      `json:"rate"`
	Points        float64      `json:"points"`
	FamilyShare   float64      `json:"family_share"`
	PersonalShare float64      `json:"personal_share"`
	Status        RewardStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
}
