package approval

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stridefam/stridefam/internal/database"
	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/store"
)

type fixture struct {
	gate      *Gate
	members   *store.MemberStore
	families  *store.FamilyStore
	approvals *store.ApprovalStore
	ledger    *store.LedgerStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	members := store.NewMemberStore(db)
	families := store.NewFamilyStore(db)
	approvals := store.NewApprovalStore(db)
	ledger := store.NewLedgerStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		gate:      NewGate(members, families, approvals, ledger, logger),
		members:   members,
		families:  families,
		approvals: approvals,
		ledger:    ledger,
	}
}

func (f *fixture) addFamily(t *testing.T, owner string) *model.Family {
	t.Helper()
	if _, err := f.members.Create(owner, owner, nil, nil, 0); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	fam, err := f.families.Create("Fam", owner)
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	if err := f.members.SetFamily(owner, &fam.ID); err != nil {
		t.Fatalf("attach owner: %v", err)
	}
	return fam
}

func (f *fixture) addMember(t *testing.T, uid string, familyID *string, age *int, limitUSD float64) {
	t.Helper()
	if _, err := f.members.Create(uid, uid, familyID, age, limitUSD); err != nil {
		t.Fatalf("create member %s: %v", uid, err)
	}
}

func nftPayload(t *testing.T, priceUSD float64) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(model.NFTPayload{CollectionID: "c1", TokenID: "t1", PriceUSD: priceUSD})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestChildAlwaysNeedsApproval(t *testing.T) {
	f := newFixture(t)
	fam := f.addFamily(t, "owner")
	age := 9
	f.addMember(t, "kid", &fam.ID, &age, 0)

	v, err := f.gate.Check("kid", model.OpNFT, nftPayload(t, 0.01), 0.01)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if v.Allowed {
		t.Error("child operation allowed, want parked")
	}
	if v.Request == nil || v.Request.Status != model.ApprovalPending {
		t.Errorf("request = %+v, want pending", v.Request)
	}
}

func TestTeenWithinLimitAllowed(t *testing.T) {
	f := newFixture(t)
	fam := f.addFamily(t, "owner")
	age := 15
	f.addMember(t, "teen", &fam.ID, &age, 50)

	v, err := f.gate.Check("teen", model.OpNFT, nftPayload(t, 20), 20)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !v.Allowed {
		t.Error("within-limit teen spend parked, want allowed")
	}
}

func TestTeenOverLimitNeedsApproval(t *testing.T) {
	f := newFixture(t)
	fam := f.addFamily(t, "owner")
	age := 15
	f.addMember(t, "teen", &fam.ID, &age, 50)

	// Settle $40 of spend today, then try $15 more.
	if err := f.ledger.CreditPersonal("teen", 1000, store.Entry{Kind: model.EntryStepReward, Day: "2026-08-28", IdempotencyKey: "c1"}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := f.ledger.SpendPersonal("teen", 400, 40, "order-1"); err != nil {
		t.Fatalf("spend: %v", err)
	}

	v, err := f.gate.Check("teen", model.OpNFT, nftPayload(t, 15), 15)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if v.Allowed {
		t.Error("over-limit teen spend allowed, want parked")
	}
}

func TestTeenZeroLimitAllowed(t *testing.T) {
	f := newFixture(t)
	fam := f.addFamily(t, "owner")
	age := 16
	f.addMember(t, "teen", &fam.ID, &age, 0)

	v, err := f.gate.Check("teen", model.OpSwap, mustJSON(t, model.SwapPayload{FromSymbol: "PTS", ToSymbol: "GEM", Amount: 500}), 500)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !v.Allowed {
		t.Error("teen with no limit parked, want allowed")
	}
}

func TestAdultNeverGated(t *testing.T) {
	f := newFixture(t)
	age := 34
	f.addMember(t, "adult", nil, &age, 10)

	v, err := f.gate.Check("adult", model.OpStake, mustJSON(t, model.StakePayload{PoolID: "flex", Amount: 9999}), 9999)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !v.Allowed {
		t.Error("adult operation parked, want allowed")
	}
}

func TestChildWithoutFamilyFailsClosed(t *testing.T) {
	f := newFixture(t)
	age := 10
	f.addMember(t, "orphan", nil, &age, 0)

	_, err := f.gate.Check("orphan", model.OpNFT, nftPayload(t, 5), 5)
	if err != store.ErrNoFamily {
		t.Errorf("err = %v, want ErrNoFamily", err)
	}
}

func TestCheckUnknownMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.Check("ghost", model.OpNFT, nftPayload(t, 5), 5)
	if err != store.ErrUnknownMember {
		t.Errorf("err = %v, want ErrUnknownMember", err)
	}
}

func TestDecideOwnerOnly(t *testing.T) {
	f := newFixture(t)
	fam := f.addFamily(t, "owner")
	age := 9
	f.addMember(t, "kid", &fam.ID, &age, 0)
	adultAge := 40
	f.addMember(t, "uncle", &fam.ID, &adultAge, 0)

	v, err := f.gate.Check("kid", model.OpNFT, nftPayload(t, 5), 5)
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if _, err := f.gate.Decide(v.Request.ID, "uncle", true); err != store.ErrNotOwner {
		t.Fatalf("non-owner decide err = %v, want ErrNotOwner", err)
	}
	if _, err := f.gate.Decide(v.Request.ID, "kid", true); err != store.ErrNotOwner {
		t.Fatalf("requester decide err = %v, want ErrNotOwner", err)
	}

	decided, err := f.gate.Decide(v.Request.ID, "owner", true)
	if err != nil {
		t.Fatalf("owner decide: %v", err)
	}
	if decided.Status != model.ApprovalApproved {
		t.Errorf("status = %q, want approved", decided.Status)
	}

	// Terminal: the owner cannot flip their own verdict.
	if _, err := f.gate.Decide(v.Request.ID, "owner", false); err != store.ErrAlreadyDecided {
		t.Errorf("re-decide err = %v, want ErrAlreadyDecided", err)
	}
}

func TestDecisionTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)

	token, err := issuer.Issue("req-1", "owner", true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	reqID, uid, approve, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if reqID != "req-1" || uid != "owner" || !approve {
		t.Errorf("claims = (%s, %s, %v), want (req-1, owner, true)", reqID, uid, approve)
	}

	if _, _, _, err := issuer.Verify(token + "x"); err == nil {
		t.Error("tampered token verified, want error")
	}

	other := NewTokenIssuer([]byte("different-secret"), time.Hour)
	if _, _, _, err := other.Verify(token); err == nil {
		t.Error("token verified under wrong secret, want error")
	}
}

func TestExpiredDecisionToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Minute)
	token, err := issuer.Issue("req-1", "owner", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, _, err := issuer.Verify(token); err == nil {
		t.Error("expired token verified, want error")
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}
