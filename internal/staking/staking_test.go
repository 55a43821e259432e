package staking

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stridefam/stridefam/internal/database"
	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/store"
)

type fixture struct {
	svc       *Service
	ledger    *store.LedgerStore
	positions *store.StakingStore
}

func newFixture(t *testing.T, pools []model.StakingPool) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := store.NewMemberStore(db).Create("u1", "u1", nil, nil, 0); err != nil {
		t.Fatalf("create member: %v", err)
	}
	ledger := store.NewLedgerStore(db)
	positions := store.NewStakingStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		svc:       NewService(pools, positions, ledger, logger),
		ledger:    ledger,
		positions: positions,
	}
}

func (f *fixture) fund(t *testing.T, uid string, amount float64) {
	t.Helper()
	err := f.ledger.CreditPersonal(uid, amount, store.Entry{
		Kind: model.EntryStepReward, Day: "2026-08-01", IdempotencyKey: "fund_" + uid,
	})
	if err != nil {
		t.Fatalf("fund %s: %v", uid, err)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDailyYieldExample(t *testing.T) {
	// 10000 at base 800 + plan bonus 100 = 900 bps: 10000*0.09/365.
	if got := DailyYield(10000, 900); !almostEqual(got, 2.465753) {
		t.Errorf("DailyYield = %v, want 2.465753", got)
	}
	if got := DailyYield(0, 900); got != 0 {
		t.Errorf("DailyYield(0) = %v, want 0", got)
	}
}

func TestPlanAprBonus(t *testing.T) {
	cases := []struct {
		plan model.Plan
		want int
	}{
		{model.PlanFree, 0},
		{model.PlanPlus, 50},
		{model.PlanPro, 100},
		{model.Plan("unknown"), 0},
	}
	for _, c := range cases {
		if got := PlanAprBonusBps(c.plan); got != c.want {
			t.Errorf("PlanAprBonusBps(%s) = %d, want %d", c.plan, got, c.want)
		}
	}
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 1_000_000)

	if _, err := f.svc.Open("u1", model.PlanFree, "nope", 100, false); err != ErrPoolNotFound {
		t.Errorf("unknown pool err = %v, want ErrPoolNotFound", err)
	}
	if _, err := f.svc.Open("u1", model.PlanFree, "lock6", 50, false); err != ErrAmountOutOfRange {
		t.Errorf("below-min err = %v, want ErrAmountOutOfRange", err)
	}
	if _, err := f.svc.Open("u1", model.PlanFree, "lock12", 2000, false); err != ErrPlanNotEligible {
		t.Errorf("free plan in lock12 err = %v, want ErrPlanNotEligible", err)
	}
	if _, err := f.svc.Open("u1", model.PlanPro, "lock12", 2000, true); err != ErrCompoundingDenied {
		t.Errorf("compound in lock12 err = %v, want ErrCompoundingDenied", err)
	}
}

func TestOpenResolvesAprAndUnlock(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 20000)

	pos, err := f.svc.Open("u1", model.PlanPro, "lock6", 10000, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if pos.AprBps != 900 {
		t.Errorf("apr_bps = %d, want 900 (800 base + 100 pro bonus)", pos.AprBps)
	}
	if pos.UnlockAt == nil {
		t.Fatal("unlock_at nil, want ~6 months out")
	}

	// Principal left the spendable balance.
	b, _ := f.ledger.Balance("u1")
	if !almostEqual(b.Personal, 10000) {
		t.Errorf("personal = %v, want 10000 after staking 10000", b.Personal)
	}

	flex, err := f.svc.Open("u1", model.PlanFree, "flex", 100, true)
	if err != nil {
		t.Fatalf("open flex: %v", err)
	}
	if flex.UnlockAt != nil {
		t.Errorf("flex unlock_at = %v, want nil", flex.UnlockAt)
	}
}

func TestOpenInsufficientFunds(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 50)

	if _, err := f.svc.Open("u1", model.PlanFree, "flex", 100, false); err != store.ErrInsufficientFunds {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestAccrueDayIdempotent(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 20000)

	pos, err := f.svc.Open("u1", model.PlanPro, "lock6", 10000, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 3; i++ {
		p, _ := f.positions.GetByID(pos.ID)
		if err := f.svc.AccrueDay(p, "2026-08-02"); err != nil {
			t.Fatalf("accrue %d: %v", i, err)
		}
	}

	got, _ := f.positions.GetByID(pos.ID)
	if !almostEqual(got.Accrued, 2.465753) {
		t.Errorf("accrued = %v, want 2.465753 after replayed day", got.Accrued)
	}
	if !almostEqual(got.Amount, 10000) {
		t.Errorf("amount = %v, want fixed 10000 for non-compound", got.Amount)
	}

	// A new day accrues again.
	if err := f.svc.AccrueDay(got, "2026-08-03"); err != nil {
		t.Fatalf("accrue next day: %v", err)
	}
	got, _ = f.positions.GetByID(pos.ID)
	if !almostEqual(got.Accrued, 2*2.465753) {
		t.Errorf("accrued = %v, want %v", got.Accrued, 2*2.465753)
	}
}

func TestAccrueCompoundGrowsAmount(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 10000)

	pos, err := f.svc.Open("u1", model.PlanFree, "flex", 10000, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := f.svc.AccrueDay(pos, "2026-08-02"); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	got, _ := f.positions.GetByID(pos.ID)
	if got.Accrued != 0 {
		t.Errorf("accrued = %v, want 0 for compounding", got.Accrued)
	}
	wantDay1 := DailyYield(10000, 500)
	if !almostEqual(got.Amount, 10000+wantDay1) {
		t.Errorf("amount = %v, want %v", got.Amount, 10000+wantDay1)
	}

	// Next day's yield compounds on the grown amount.
	if err := f.svc.AccrueDay(got, "2026-08-03"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	after, _ := f.positions.GetByID(pos.ID)
	wantDay2 := DailyYield(10000+wantDay1, 500)
	if !almostEqual(after.Amount, 10000+wantDay1+wantDay2) {
		t.Errorf("amount = %v, want %v", after.Amount, 10000+wantDay1+wantDay2)
	}
}

func TestClaim(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 20000)

	pos, err := f.svc.Open("u1", model.PlanPro, "lock6", 10000, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := f.svc.Claim("u1", pos.ID); err != ErrNothingAccrued {
		t.Errorf("empty claim err = %v, want ErrNothingAccrued", err)
	}

	if err := f.svc.AccrueDay(pos, "2026-08-02"); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	claimed, err := f.svc.Claim("u1", pos.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !almostEqual(claimed, 2.465753) {
		t.Errorf("claimed = %v, want 2.465753", claimed)
	}

	b, _ := f.ledger.Balance("u1")
	if !almostEqual(b.Personal, 10000+2.465753) {
		t.Errorf("personal = %v, want %v", b.Personal, 10000+2.465753)
	}

	comp, err := f.svc.Open("u1", model.PlanFree, "flex", 100, true)
	if err != nil {
		t.Fatalf("open flex: %v", err)
	}
	if _, err := f.svc.Claim("u1", comp.ID); err != ErrCompoundClaim {
		t.Errorf("compound claim err = %v, want ErrCompoundClaim", err)
	}
}

func TestScheduledCloseRequiresUnlock(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 20000)

	locked, err := f.svc.Open("u1", model.PlanFree, "lock6", 10000, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.svc.Close("u1", locked.ID); err != ErrStillLocked {
		t.Errorf("close locked err = %v, want ErrStillLocked", err)
	}

	flex, err := f.svc.Open("u1", model.PlanFree, "flex", 100, false)
	if err != nil {
		t.Fatalf("open flex: %v", err)
	}
	returned, err := f.svc.Close("u1", flex.ID)
	if err != nil {
		t.Fatalf("close flex: %v", err)
	}
	if !almostEqual(returned, 100) {
		t.Errorf("returned = %v, want 100", returned)
	}
	if _, err := f.svc.Close("u1", flex.ID); err != store.ErrPositionClosed {
		t.Errorf("double close err = %v, want ErrPositionClosed", err)
	}
}

func TestCloseEarlyPenalty(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 10000)

	pos, err := f.svc.Open("u1", model.PlanFree, "lock6", 10000, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	returned, penalty, err := f.svc.CloseEarly("u1", pos.ID)
	if err != nil {
		t.Fatalf("close early: %v", err)
	}
	// 500 bps of 10000.
	if !almostEqual(penalty, 500) {
		t.Errorf("penalty = %v, want 500", penalty)
	}
	if !almostEqual(returned, 9500) {
		t.Errorf("returned = %v, want 9500", returned)
	}

	b, _ := f.ledger.Balance("u1")
	if !almostEqual(b.Personal, 9500) {
		t.Errorf("personal = %v, want 9500", b.Personal)
	}

	got, _ := f.positions.GetByID(pos.ID)
	if got.Status != model.PositionClosed {
		t.Errorf("status = %q, want closed", got.Status)
	}
}

func TestCloseEarlyOnUnlockedRejected(t *testing.T) {
	f := newFixture(t, DefaultPools())
	f.fund(t, "u1", 100)

	pos, err := f.svc.Open("u1", model.PlanFree, "flex", 100, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := f.svc.CloseEarly("u1", pos.ID); err != ErrNotLocked {
		t.Errorf("early close on flex err = %v, want ErrNotLocked", err)
	}
}

func TestMaturityThreshold(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	mk := func(until time.Duration) *model.StakingPosition {
		u := now.Add(until)
		return &model.StakingPosition{UnlockAt: &u, Status: model.PositionActive}
	}

	cases := []struct {
		name string
		pos  *model.StakingPosition
		want string
	}{
		{"no lock", &model.StakingPosition{Status: model.PositionActive}, ""},
		{"far out", mk(30 * 24 * time.Hour), ""},
		{"inside 7d", mk(5 * 24 * time.Hour), "7d"},
		{"inside 1d", mk(6 * time.Hour), "1d"},
		{"already unlocked", mk(-time.Hour), ""},
	}
	for _, c := range cases {
		if got := MaturityThreshold(c.pos, now); got != c.want {
			t.Errorf("%s: threshold = %q, want %q", c.name, got, c.want)
		}
	}
}
