package store

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stridefam/stridefam/internal/database"
	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/reward"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedFamily(t *testing.T, db *sql.DB, ownerUID string) *model.Family {
	t.Helper()
	fam, err := NewFamilyStore(db).Create("Test Family", ownerUID)
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return fam
}

func seedMember(t *testing.T, db *sql.DB, uid string, familyID *string, age *int) *model.Member {
	t.Helper()
	m, err := NewMemberStore(db).Create(uid, uid, familyID, age, 0)
	if err != nil {
		t.Fatalf("create member %s: %v", uid, err)
	}
	return m
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCreditPersonalIdempotent(t *testing.T) {
	db := testDB(t)
	seedMember(t, db, "u1", nil, nil)
	ledger := NewLedgerStore(db)

	entry := Entry{Kind: model.EntryStepReward, Day: "2026-08-01", IdempotencyKey: "k1"}
	for i := 0; i < 3; i++ {
		if err := ledger.CreditPersonal("u1", 100, entry); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}

	b, err := ledger.Balance("u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !almostEqual(b.Personal, 100) {
		t.Errorf("personal = %v, want 100 after replays", b.Personal)
	}
	if !almostEqual(b.TotalEarned, 100) {
		t.Errorf("total_earned = %v, want 100", b.TotalEarned)
	}

	entries, err := ledger.ListByUID("u1", 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d ledger entries, want 1", len(entries))
	}
}

func TestApplyRewardPlanReplay(t *testing.T) {
	db := testDB(t)
	fam := seedFamily(t, db, "owner")
	age := 16
	seedMember(t, db, "kid", &fam.ID, &age)
	ledger := NewLedgerStore(db)

	plan := reward.Plan{
		Result: model.RewardResult{
			UID: "kid", Day: "2026-08-01", RunID: "run-1",
			Steps: 12000, WeightedSteps: 18000, Rate: 0.01,
			Points: 180, FamilyShare: 144, PersonalShare: 36,
			Status: model.RewardPaid,
		},
		Credits: []reward.Credit{
			{Target: reward.TargetTreasury, FamilyID: fam.ID, UID: "kid", Amount: 144, Kind: model.EntryFamilyShare, Key: "2026-08-01_kid_run-1_fam"},
			{Target: reward.TargetPersonal, FamilyID: fam.ID, UID: "kid", Amount: 36, Kind: model.EntryStepReward, Key: "2026-08-01_kid_run-1_per"},
		},
	}

	// Same run applied three times must pay exactly once.
	for i := 0; i < 3; i++ {
		if err := ledger.ApplyRewardPlan(plan); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	b, err := ledger.Balance("kid")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !almostEqual(b.Personal, 36) {
		t.Errorf("personal = %v, want 36", b.Personal)
	}
	if !almostEqual(b.FamilyContributed, 144) {
		t.Errorf("family_contributed = %v, want 144", b.FamilyContributed)
	}
	if !almostEqual(b.TotalEarned, 180) {
		t.Errorf("total_earned = %v, want 180", b.TotalEarned)
	}

	treasury, err := ledger.TreasuryBalance(fam.ID)
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if !almostEqual(treasury, 144) {
		t.Errorf("treasury = %v, want 144", treasury)
	}
}

func TestApplyRewardPlanRejectsSecondRun(t *testing.T) {
	db := testDB(t)
	seedMember(t, db, "u1", nil, nil)
	ledger := NewLedgerStore(db)

	mkPlan := func(runID string) reward.Plan {
		return reward.Plan{
			Result: model.RewardResult{
				UID: "u1", Day: "2026-08-01", RunID: runID,
				Steps: 5000, WeightedSteps: 5000, Rate: 0.01,
				Points: 50, PersonalShare: 50, Status: model.RewardPaid,
			},
			Credits: []reward.Credit{
				{Target: reward.TargetPersonal, UID: "u1", Amount: 50, Kind: model.EntryStepReward, Key: "2026-08-01_u1_" + runID + "_per"},
			},
		}
	}

	if err := ledger.ApplyRewardPlan(mkPlan("run-a")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := ledger.ApplyRewardPlan(mkPlan("run-b")); err != ErrDayAlreadyPaid {
		t.Fatalf("second run err = %v, want ErrDayAlreadyPaid", err)
	}

	b, _ := ledger.Balance("u1")
	if !almostEqual(b.Personal, 50) {
		t.Errorf("personal = %v, want 50 (second run must not credit)", b.Personal)
	}
}

func TestCreditLockedCountsTowardEarned(t *testing.T) {
	db := testDB(t)
	fam := seedFamily(t, db, "owner")
	age := 9
	seedMember(t, db, "kid", &fam.ID, &age)
	ledger := NewLedgerStore(db)

	err := ledger.CreditLocked(fam.ID, "kid", 40, Entry{
		Kind: model.EntryLockedCredit, Day: "2026-08-01", IdempotencyKey: "lk1",
	})
	if err != nil {
		t.Fatalf("credit locked: %v", err)
	}

	lb, err := ledger.Locked(fam.ID, "kid")
	if err != nil {
		t.Fatalf("locked: %v", err)
	}
	if !almostEqual(lb.Amount, 40) {
		t.Errorf("locked = %v, want 40", lb.Amount)
	}

	b, _ := ledger.Balance("kid")
	if !almostEqual(b.Personal, 0) {
		t.Errorf("personal = %v, want 0 (locked credit must not be spendable)", b.Personal)
	}
	if !almostEqual(b.TotalEarned, 40) {
		t.Errorf("total_earned = %v, want 40", b.TotalEarned)
	}
}

func TestReleaseLocked(t *testing.T) {
	db := testDB(t)
	fam := seedFamily(t, db, "owner")
	age := 9
	seedMember(t, db, "kid", &fam.ID, &age)
	ledger := NewLedgerStore(db)

	if err := ledger.ReleaseLocked(fam.ID, "kid", 10); err != ErrInsufficientLocked {
		t.Fatalf("release from empty vault err = %v, want ErrInsufficientLocked", err)
	}

	if err := ledger.CreditLocked(fam.ID, "kid", 40, Entry{Kind: model.EntryLockedCredit, Day: "2026-08-01", IdempotencyKey: "lk1"}); err != nil {
		t.Fatalf("credit locked: %v", err)
	}
	if err := ledger.ReleaseLocked(fam.ID, "kid", 50); err != ErrInsufficientLocked {
		t.Fatalf("over-release err = %v, want ErrInsufficientLocked", err)
	}
	if err := ledger.ReleaseLocked(fam.ID, "kid", 15); err != nil {
		t.Fatalf("release: %v", err)
	}

	lb, _ := ledger.Locked(fam.ID, "kid")
	if !almostEqual(lb.Amount, 25) {
		t.Errorf("locked = %v, want 25", lb.Amount)
	}
	b, _ := ledger.Balance("kid")
	if !almostEqual(b.Personal, 15) {
		t.Errorf("personal = %v, want 15", b.Personal)
	}
	// Already counted as earned at lock time; release must not double-count.
	if !almostEqual(b.TotalEarned, 40) {
		t.Errorf("total_earned = %v, want 40", b.TotalEarned)
	}
}

func TestSpendPersonalAndSpentToday(t *testing.T) {
	db := testDB(t)
	seedMember(t, db, "u1", nil, nil)
	ledger := NewLedgerStore(db)
	now := time.Now()

	if err := ledger.SpendPersonal("u1", 10, 5, "order-1"); err != ErrInsufficientFunds {
		t.Fatalf("spend from empty err = %v, want ErrInsufficientFunds", err)
	}

	if err := ledger.CreditPersonal("u1", 100, Entry{Kind: model.EntryStepReward, Day: utcDay(now), IdempotencyKey: "c1"}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.SpendPersonal("u1", 30, 12.50, "order-1"); err != nil {
		t.Fatalf("spend: %v", err)
	}
	if err := ledger.SpendPersonal("u1", 20, 7.25, "order-2"); err != nil {
		t.Fatalf("spend: %v", err)
	}

	b, _ := ledger.Balance("u1")
	if !almostEqual(b.Personal, 50) {
		t.Errorf("personal = %v, want 50", b.Personal)
	}

	spent, err := ledger.SpentTodayUSD("u1", now)
	if err != nil {
		t.Fatalf("spent today: %v", err)
	}
	if !almostEqual(spent, 19.75) {
		t.Errorf("spent today = %v, want 19.75", spent)
	}

	// Another day's entries must not count.
	other, err := ledger.SpentTodayUSD("u1", now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("spent other day: %v", err)
	}
	if !almostEqual(other, 0) {
		t.Errorf("spent tomorrow = %v, want 0", other)
	}
}

func TestReplayTreasuryMatchesAggregate(t *testing.T) {
	db := testDB(t)
	fam := seedFamily(t, db, "owner")
	seedMember(t, db, "a", &fam.ID, nil)
	seedMember(t, db, "b", &fam.ID, nil)
	ledger := NewLedgerStore(db)

	uidA, uidB := "a", "b"
	if err := ledger.CreditFamily(fam.ID, &uidA, 120.5, Entry{Kind: model.EntryFamilyShare, Day: "2026-08-01", IdempotencyKey: "f1"}); err != nil {
		t.Fatalf("credit family: %v", err)
	}
	if err := ledger.CreditFamily(fam.ID, &uidB, 79.5, Entry{Kind: model.EntryFamilyShare, Day: "2026-08-02", IdempotencyKey: "f2"}); err != nil {
		t.Fatalf("credit family: %v", err)
	}

	aggregate, err := ledger.TreasuryBalance(fam.ID)
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	replayed, err := ledger.ReplayTreasury(fam.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !almostEqual(aggregate, replayed) {
		t.Errorf("aggregate %v != replayed %v", aggregate, replayed)
	}
	if !almostEqual(aggregate, 200) {
		t.Errorf("treasury = %v, want 200", aggregate)
	}
}
