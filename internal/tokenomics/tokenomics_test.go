package tokenomics

import (
	"math"
	"testing"

	"github.com/stridefam/stridefam/internal/model"
)

func TestDailyPoolEvenSplit(t *testing.T) {
	cfg := Config{TotalPool: 500_000_000_000, PeriodDays: 180}
	got := DailyPool(cfg, "2026-03-01")
	want := 500_000_000_000.0 / 180.0
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("DailyPool = %v, want %v", got, want)
	}
}

func TestDailyPoolOverride(t *testing.T) {
	cfg := Config{
		TotalPool:     1000,
		PeriodDays:    10,
		PoolOverrides: map[string]float64{"2026-03-01": 42},
	}
	if got := DailyPool(cfg, "2026-03-01"); got != 42 {
		t.Errorf("override day pool = %v, want 42", got)
	}
	if got := DailyPool(cfg, "2026-03-02"); got != 100 {
		t.Errorf("plain day pool = %v, want 100", got)
	}
}

func TestDailyPoolZeroPeriod(t *testing.T) {
	if got := DailyPool(Config{TotalPool: 1000}, "2026-03-01"); got != 0 {
		t.Errorf("zero period pool = %v, want 0", got)
	}
}

func TestMultiplierMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	free := Multiplier(cfg, model.PlanFree)
	plus := Multiplier(cfg, model.PlanPlus)
	pro := Multiplier(cfg, model.PlanPro)
	if !(free <= plus && plus <= pro) {
		t.Errorf("multipliers not monotonic: free=%v plus=%v pro=%v", free, plus, pro)
	}
}

func TestMultiplierUnknownPlanFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	if got := Multiplier(cfg, model.Plan("enterprise")); got != 1.0 {
		t.Errorf("unknown plan multiplier = %v, want lowest (1.0)", got)
	}
	if got := Multiplier(cfg, ""); got != 1.0 {
		t.Errorf("empty plan multiplier = %v, want 1.0", got)
	}
}

func TestWeightedSteps(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name  string
		steps float64
		plan  model.Plan
		want  float64
	}{
		{"free", 10000, model.PlanFree, 10000},
		{"plus", 12000, model.PlanPlus, 18000},
		{"pro", 10000, model.PlanPro, 20000},
		{"zero", 0, model.PlanPro, 0},
		{"negative", -500, model.PlanFree, 0},
		{"nan", math.NaN(), model.PlanFree, 0},
		{"inf", math.Inf(1), model.PlanFree, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeightedSteps(cfg, tt.steps, tt.plan); got != tt.want {
				t.Errorf("WeightedSteps(%v, %s) = %v, want %v", tt.steps, tt.plan, got, tt.want)
			}
		})
	}
}

func TestRateForDayNoDivisionByZero(t *testing.T) {
	if got := RateForDay(1000, 0); got != 0 {
		t.Errorf("rate with zero denominator = %v, want 0", got)
	}
	if got := RateForDay(0, 5000); got != 0 {
		t.Errorf("rate with zero pool = %v, want 0", got)
	}
	if got := RateForDay(1000, math.NaN()); got != 0 {
		t.Errorf("rate with NaN denominator = %v, want 0", got)
	}
	if got := RateForDay(math.Inf(1), 5000); got != 0 {
		t.Errorf("rate with infinite pool = %v, want 0", got)
	}
}

func TestRateForDayExample(t *testing.T) {
	// 2,777,777,777.78 pool over 1,000,000 weighted steps ≈ 2777.78/step.
	rate := RateForDay(2_777_777_777.78, 1_000_000)
	if math.Abs(rate-2777.77777778) > 1e-4 {
		t.Errorf("rate = %v, want ≈2777.78", rate)
	}
}

func TestRound4(t *testing.T) {
	if got := Round4(1.23456); got != 1.2346 {
		t.Errorf("Round4(1.23456) = %v, want 1.2346", got)
	}
	if got := Round4(math.NaN()); got != 0 {
		t.Errorf("Round4(NaN) = %v, want 0", got)
	}
}

func TestRound6(t *testing.T) {
	// Rounds up where Floor6 would truncate.
	if got := Round6(1.0000006); got != 1.000001 {
		t.Errorf("Round6(1.0000006) = %v, want 1.000001", got)
	}
	if got := Round6(1.0000004); got != 1.0 {
		t.Errorf("Round6(1.0000004) = %v, want 1", got)
	}
	if got := Round6(math.NaN()); got != 0 {
		t.Errorf("Round6(NaN) = %v, want 0", got)
	}
}

func TestFloor6(t *testing.T) {
	// 10000 * 0.09 / 365 = 2.46575342...
	daily := 10000 * 0.09 / 365
	if got := Floor6(daily); got != 2.465753 {
		t.Errorf("Floor6(%v) = %v, want 2.465753", daily, got)
	}
	if got := Floor6(math.Inf(-1)); got != 0 {
		t.Errorf("Floor6(-Inf) = %v, want 0", got)
	}
}
