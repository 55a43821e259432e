// Package tokenomics holds the pure reward math: the daily pool schedule,
// subscription weighting, and the pool/weighted-steps rate. No I/O.
package tokenomics

import (
	"math"

	"github.com/stridefam/stridefam/internal/model"
)

// Config is injected per invocation so the math stays deterministic and
// testable without environment setup.
type Config struct {
	// TotalPool is distributed evenly across PeriodDays.
	TotalPool  float64
	PeriodDays int
	// PoolOverrides maps YYYY-MM-DD to an explicit pool for that date,
	// consulted before the even split.
	PoolOverrides map[string]float64

	// Multipliers per plan. Missing or unknown plans fall back to the
	// lowest multiplier, never an error.
	Multipliers map[model.Plan]float64

	MinSteps      int
	ChildAgeLimit int
	// FamilyShare is the family-vault fraction for adults with a family.
	FamilyShare float64
}

// DefaultConfig mirrors the launch tokenomics: a 500B pool unlocked over
// 180 days, free=1.0 / plus=1.5 / pro=2.0.
func DefaultConfig() Config {
	return Config{
		TotalPool:  500_000_000_000,
		PeriodDays: 180,
		Multipliers: map[model.Plan]float64{
			model.PlanFree: 1.0,
			model.PlanPlus: 1.5,
			model.PlanPro:  2.0,
		},
		MinSteps:      1000,
		ChildAgeLimit: 14,
		FamilyShare:   0.8,
	}
}

// DailyPool returns the pool for the given date (YYYY-MM-DD). Overrides win;
// otherwise the total is split evenly across the period.
func DailyPool(cfg Config, day string) float64 {
	if v, ok := cfg.PoolOverrides[day]; ok {
		return clamp(v)
	}
	if cfg.PeriodDays <= 0 {
		return 0
	}
	return clamp(cfg.TotalPool / float64(cfg.PeriodDays))
}

// Multiplier maps a plan to its reward factor. Unknown plans get the lowest
// configured multiplier.
func Multiplier(cfg Config, plan model.Plan) float64 {
	if f, ok := cfg.Multipliers[plan]; ok {
		return clamp(f)
	}
	lowest := math.Inf(1)
	for _, f := range cfg.Multipliers {
		if f < lowest {
			lowest = f
		}
	}
	if math.IsInf(lowest, 1) {
		return 1.0
	}
	return clamp(lowest)
}

// WeightedSteps returns steps * plan multiplier. Non-finite or non-positive
// step counts yield 0: no reward, not an error.
func WeightedSteps(cfg Config, steps float64, plan model.Plan) float64 {
	if !isFinite(steps) || steps <= 0 {
		return 0
	}
	return clamp(steps * Multiplier(cfg, plan))
}

// RateForDay divides the day's pool by the total weighted steps across all
// users. A day with no qualifying activity pays nothing rather than dividing
// by zero.
func RateForDay(pool, totalWeighted float64) float64 {
	if !isFinite(pool) || pool <= 0 {
		return 0
	}
	if !isFinite(totalWeighted) || totalWeighted <= 0 {
		return 0
	}
	return clamp(pool / totalWeighted)
}

// Round4 rounds to 4 decimal places, the precision points are kept at.
func Round4(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return math.Round(v*1e4) / 1e4
}

// Round6 rounds to 6 decimal places, used for the early-exit penalty.
func Round6(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return math.Round(v*1e6) / 1e6
}

// Floor6 floors to 6 decimal places, used for staking yield so accrual never
// pays ahead of the position.
func Floor6(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return math.Floor(v*1e6) / 1e6
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clamp collapses any NaN/Infinity/negative intermediate to 0 so bad data
// never propagates into balances.
func clamp(v float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return v
}
