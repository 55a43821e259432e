package store

import (
	"testing"

	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/reward"
)

func TestUpsertDayOverwritesUntilPaid(t *testing.T) {
	db := testDB(t)
	seedMember(t, db, "u1", nil, nil)
	steps := NewStepStore(db)

	// Device re-sync overwrites freely before settlement.
	if err := steps.UpsertDay("u1", "2026-08-01", 4000); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := steps.UpsertDay("u1", "2026-08-01", 9000); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _ := steps.GetDay("u1", "2026-08-01")
	if got != 9000 {
		t.Fatalf("steps = %d, want 9000", got)
	}

	ledger := NewLedgerStore(db)
	err := ledger.ApplyRewardPlan(reward.Plan{
		Result: model.RewardResult{
			UID: "u1", Day: "2026-08-01", RunID: "run-1",
			Steps: 9000, WeightedSteps: 9000, Rate: 0.01,
			Points: 90, PersonalShare: 90, Status: model.RewardPaid,
		},
		Credits: []reward.Credit{
			{Target: reward.TargetPersonal, UID: "u1", Amount: 90, Kind: model.EntryStepReward, Key: "2026-08-01_u1_run-1_per"},
		},
	})
	if err != nil {
		t.Fatalf("apply plan: %v", err)
	}

	if err := steps.UpsertDay("u1", "2026-08-01", 12000); err != ErrDayAlreadyPaid {
		t.Errorf("upsert after settlement err = %v, want ErrDayAlreadyPaid", err)
	}
	got, _ = steps.GetDay("u1", "2026-08-01")
	if got != 9000 {
		t.Errorf("steps = %d, want 9000 (settled day immutable)", got)
	}
}

func TestListForDayJoinsMembership(t *testing.T) {
	db := testDB(t)
	fam := seedFamily(t, db, "owner")
	age := 11
	seedMember(t, db, "kid", &fam.ID, &age)
	seedMember(t, db, "solo", nil, nil)
	steps := NewStepStore(db)

	if err := steps.UpsertDay("kid", "2026-08-01", 5000); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := steps.UpsertDay("solo", "2026-08-01", 7000); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := steps.UpsertDay("solo", "2026-08-02", 100); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	users, err := steps.ListForDay("2026-08-01")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}

	byUID := map[string]model.UserDay{}
	for _, u := range users {
		byUID[u.UID] = u
	}
	kid := byUID["kid"]
	if kid.FamilyID == nil || *kid.FamilyID != fam.ID {
		t.Errorf("kid family = %v, want %s", kid.FamilyID, fam.ID)
	}
	if kid.AgeYears == nil || *kid.AgeYears != 11 {
		t.Errorf("kid age = %v, want 11", kid.AgeYears)
	}
	if kid.Plan != model.PlanFree {
		t.Errorf("kid plan = %q, want free", kid.Plan)
	}
	solo := byUID["solo"]
	if solo.FamilyID != nil {
		t.Errorf("solo family = %v, want nil", solo.FamilyID)
	}
	if solo.TotalSteps != 7000 {
		t.Errorf("solo steps = %d, want 7000", solo.TotalSteps)
	}
}
