package batch

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stridefam/stridefam/internal/database"
	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/push"
	"github.com/stridefam/stridefam/internal/staking"
	"github.com/stridefam/stridefam/internal/store"
	"github.com/stridefam/stridefam/internal/tokenomics"
	"github.com/stridefam/stridefam/internal/websocket"
)

type fixture struct {
	runner    *Runner
	ledger    *store.LedgerStore
	steps     *store.StepStore
	rewards   *store.RewardStore
	positions *store.StakingStore
	staking   *staking.Service
	members   *store.MemberStore
	families  *store.FamilyStore
}

func newFixture(t *testing.T, cfg tokenomics.Config) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := store.NewLedgerStore(db)
	positions := store.NewStakingStore(db)
	pushStore := store.NewPushStore(db)
	families := store.NewFamilyStore(db)
	stakingSvc := staking.NewService(staking.DefaultPools(), positions, ledger, logger)
	notifier := push.NewNotifier(push.NewService("", ""), pushStore, families, logger)

	f := &fixture{
		ledger:    ledger,
		steps:     store.NewStepStore(db),
		rewards:   store.NewRewardStore(db),
		positions: positions,
		staking:   stakingSvc,
		members:   store.NewMemberStore(db),
		families:  families,
	}
	f.runner = NewRunner(cfg, f.steps, ledger, positions, store.NewSessionStore(db),
		stakingSvc, notifier, websocket.NewHub(logger), nil, logger)
	return f
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// testConfig pays 1000 points per day so expected values stay readable.
func testConfig() tokenomics.Config {
	cfg := tokenomics.DefaultConfig()
	cfg.TotalPool = 1000
	cfg.PeriodDays = 1
	return cfg
}

func TestRunRewardsDistributesDay(t *testing.T) {
	f := newFixture(t, testConfig())
	fam, err := f.families.Create("Fam", "owner")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	age := 10
	if _, err := f.members.Create("kid", "kid", &fam.ID, &age, 0); err != nil {
		t.Fatalf("create kid: %v", err)
	}
	if _, err := f.members.Create("solo", "solo", nil, nil, 0); err != nil {
		t.Fatalf("create solo: %v", err)
	}

	day := "2026-08-27"
	if err := f.steps.UpsertDay("kid", day, 6000); err != nil {
		t.Fatalf("upsert kid: %v", err)
	}
	if err := f.steps.UpsertDay("solo", day, 4000); err != nil {
		t.Fatalf("upsert solo: %v", err)
	}

	if err := f.runner.RunRewards(context.Background(), day, "run-1"); err != nil {
		t.Fatalf("run rewards: %v", err)
	}

	// Both on free plan: weighted 6000 + 4000, rate = 1000/10000 = 0.1.
	// kid: 600 points, minor split 80% treasury / 20% locked.
	// solo: 400 points, all personal.
	treasury, _ := f.ledger.TreasuryBalance(fam.ID)
	if !almostEqual(treasury, 480) {
		t.Errorf("treasury = %v, want 480", treasury)
	}
	locked, _ := f.ledger.Locked(fam.ID, "kid")
	if !almostEqual(locked.Amount, 120) {
		t.Errorf("locked = %v, want 120", locked.Amount)
	}
	kidBal, _ := f.ledger.Balance("kid")
	if !almostEqual(kidBal.Personal, 0) {
		t.Errorf("kid personal = %v, want 0", kidBal.Personal)
	}
	soloBal, _ := f.ledger.Balance("solo")
	if !almostEqual(soloBal.Personal, 400) {
		t.Errorf("solo personal = %v, want 400", soloBal.Personal)
	}

	results, err := f.rewards.ListByDay(day)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestRunRewardsReplaySameRun(t *testing.T) {
	f := newFixture(t, testConfig())
	if _, err := f.members.Create("u1", "u1", nil, nil, 0); err != nil {
		t.Fatalf("create member: %v", err)
	}
	day := "2026-08-27"
	if err := f.steps.UpsertDay("u1", day, 5000); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.runner.RunRewards(context.Background(), day, "run-1"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	b, _ := f.ledger.Balance("u1")
	if !almostEqual(b.Personal, 1000) {
		t.Errorf("personal = %v, want 1000 after replayed runs", b.Personal)
	}
}

func TestRunRewardsDifferentRunDoesNotDoublePay(t *testing.T) {
	f := newFixture(t, testConfig())
	if _, err := f.members.Create("u1", "u1", nil, nil, 0); err != nil {
		t.Fatalf("create member: %v", err)
	}
	day := "2026-08-27"
	if err := f.steps.UpsertDay("u1", day, 5000); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := f.runner.RunRewards(context.Background(), day, "run-1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// A different run against the paid day is isolated per user and logged,
	// never credited.
	if err := f.runner.RunRewards(context.Background(), day, "run-2"); err != nil {
		t.Fatalf("second run: %v", err)
	}

	b, _ := f.ledger.Balance("u1")
	if !almostEqual(b.Personal, 1000) {
		t.Errorf("personal = %v, want 1000", b.Personal)
	}
	result, _ := f.rewards.Get("u1", day)
	if result.RunID != "run-1" {
		t.Errorf("run_id = %q, want run-1", result.RunID)
	}
}

func TestRunRewardsBelowFloorSkipped(t *testing.T) {
	f := newFixture(t, testConfig())
	if _, err := f.members.Create("u1", "u1", nil, nil, 0); err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := f.members.Create("u2", "u2", nil, nil, 0); err != nil {
		t.Fatalf("create member: %v", err)
	}
	day := "2026-08-27"
	if err := f.steps.UpsertDay("u1", day, 500); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := f.steps.UpsertDay("u2", day, 2000); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := f.runner.RunRewards(context.Background(), day, "run-1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	b1, _ := f.ledger.Balance("u1")
	if !almostEqual(b1.Personal, 0) {
		t.Errorf("below-floor personal = %v, want 0", b1.Personal)
	}
	// u2 takes the entire pool: only qualifying steps set the rate.
	b2, _ := f.ledger.Balance("u2")
	if !almostEqual(b2.Personal, 1000) {
		t.Errorf("qualifying personal = %v, want 1000", b2.Personal)
	}

	r1, _ := f.rewards.Get("u1", day)
	if r1.Status != model.RewardSkipped {
		t.Errorf("below-floor status = %q, want skipped", r1.Status)
	}
}

func TestRunAccrualIdempotent(t *testing.T) {
	f := newFixture(t, testConfig())
	if _, err := f.members.Create("u1", "u1", nil, nil, 0); err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := f.ledger.CreditPersonal("u1", 20000, store.Entry{Kind: model.EntryStepReward, Day: "2026-08-01", IdempotencyKey: "fund"}); err != nil {
		t.Fatalf("fund: %v", err)
	}
	pos, err := f.staking.Open("u1", model.PlanPro, "lock6", 10000, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.runner.RunAccrual(context.Background(), "2026-08-28"); err != nil {
			t.Fatalf("accrual %d: %v", i, err)
		}
	}

	got, _ := f.positions.GetByID(pos.ID)
	if !almostEqual(got.Accrued, 2.465753) {
		t.Errorf("accrued = %v, want 2.465753 after replayed accrual", got.Accrued)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, testConfig())
	f.runner.interval = 10 * time.Millisecond

	f.runner.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	f.runner.Stop()
	// Stop blocks until the loop exits; a second Stop must not hang.
	f.runner.Stop()
}
