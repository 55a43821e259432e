// Package reward computes per-user-day rewards and emits write-plans.
// It never mutates persisted state; plans are handed to the ledger store,
// which is the only component allowed to move balances.
package reward

import (
	"fmt"

	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/tokenomics"
)

type CreditTarget string

const (
	TargetTreasury CreditTarget = "treasury"
	TargetPersonal CreditTarget = "personal"
	TargetLocked   CreditTarget = "locked"
)

// Credit is one balance increment paired with its ledger entry.
type Credit struct {
	Target   CreditTarget
	FamilyID string
	UID      string
	Amount   float64
	Kind     string
	Key      string
}

// Plan describes everything one user-day run wants written: the reward row
// and zero or more keyed credits. Applying a plan twice is a no-op past the
// first application.
type Plan struct {
	Result  model.RewardResult
	Credits []Credit
}

// DaySummary aggregates a whole day's computation.
type DaySummary struct {
	Day           string
	RunID         string
	Rate          float64
	TotalWeighted float64
	Plans         []Plan
}

// TotalWeightedSteps sums weighted steps over users that clear the step
// floor. Users below the floor do not dilute the day's rate.
func TotalWeightedSteps(cfg tokenomics.Config, users []model.UserDay) float64 {
	var total float64
	for _, u := range users {
		if u.TotalSteps < cfg.MinSteps {
			continue
		}
		total += tokenomics.WeightedSteps(cfg, float64(u.TotalSteps), u.Plan)
	}
	return total
}

// BuildDay computes the day's rate and one plan per user.
func BuildDay(cfg tokenomics.Config, users []model.UserDay, day, runID string) DaySummary {
	totalWeighted := TotalWeightedSteps(cfg, users)
	rate := tokenomics.RateForDay(tokenomics.DailyPool(cfg, day), totalWeighted)

	summary := DaySummary{Day: day, RunID: runID, Rate: rate, TotalWeighted: totalWeighted}
	for _, u := range users {
		summary.Plans = append(summary.Plans, ComputeUserDay(cfg, u, rate, runID))
	}
	return summary
}

// ComputeUserDay produces the reward result and write-plan for one user-day.
//
// Split rules:
//   - below the step floor, or a zero rate: skipped, all shares zero
//   - minor: 100% family share, zero personal; the family cut lands in the
//     treasury and the child's cut in the guardian-locked vault
//   - adult with family: 80% treasury, 20% personal
//   - adult without family: 100% personal
//
// Shares are rounded to 4 decimals independently; points is not re-derived
// from the rounded shares, so drift stays within 1e-4 per user-day.
func ComputeUserDay(cfg tokenomics.Config, u model.UserDay, rate float64, runID string) Plan {
	result := model.RewardResult{
		UID:    u.UID,
		Day:    u.Day,
		RunID:  runID,
		Steps:  u.TotalSteps,
		Rate:   rate,
		Status: model.RewardSkipped,
	}

	if u.TotalSteps < cfg.MinSteps || rate <= 0 {
		return Plan{Result: result}
	}

	weighted := tokenomics.WeightedSteps(cfg, float64(u.TotalSteps), u.Plan)
	points := tokenomics.Round4(weighted * rate)
	if points <= 0 {
		return Plan{Result: result}
	}

	result.WeightedSteps = weighted
	result.Points = points
	result.Status = model.RewardPaid

	minor := u.AgeYears != nil && *u.AgeYears < cfg.ChildAgeLimit
	hasFamily := u.FamilyID != nil && *u.FamilyID != ""

	var credits []Credit
	key := planKey(u.Day, u.UID, runID)

	switch {
	case minor && hasFamily:
		result.FamilyShare = points
		treasuryCut := tokenomics.Round4(points * cfg.FamilyShare)
		lockedCut := tokenomics.Round4(points * (1 - cfg.FamilyShare))
		credits = append(credits,
			Credit{Target: TargetTreasury, FamilyID: *u.FamilyID, UID: u.UID, Amount: treasuryCut, Kind: model.EntryFamilyShare, Key: key + "_fam"},
			Credit{Target: TargetLocked, FamilyID: *u.FamilyID, UID: u.UID, Amount: lockedCut, Kind: model.EntryLockedCredit, Key: key + "_lock"},
		)
	case minor:
		// Minor without a family has nowhere spendable to put points;
		// the whole day parks in the family-share column unpaid until a
		// family exists. Treated as skipped so nothing is credited.
		result.Status = model.RewardSkipped
		result.Points = 0
		result.FamilyShare = 0
		return Plan{Result: result}
	case hasFamily:
		result.FamilyShare = tokenomics.Round4(points * cfg.FamilyShare)
		result.PersonalShare = tokenomics.Round4(points * (1 - cfg.FamilyShare))
		credits = append(credits,
			Credit{Target: TargetTreasury, FamilyID: *u.FamilyID, UID: u.UID, Amount: result.FamilyShare, Kind: model.EntryFamilyShare, Key: key + "_fam"},
			Credit{Target: TargetPersonal, UID: u.UID, FamilyID: *u.FamilyID, Amount: result.PersonalShare, Kind: model.EntryStepReward, Key: key + "_per"},
		)
	default:
		result.PersonalShare = points
		credits = append(credits,
			Credit{Target: TargetPersonal, UID: u.UID, Amount: points, Kind: model.EntryStepReward, Key: key + "_per"},
		)
	}

	return Plan{Result: result, Credits: credits}
}

func planKey(day, uid, runID string) string {
	return fmt.Sprintf("%s_%s_%s", day, uid, runID)
}
