// Package staking manages the position lifecycle: open, daily accrual,
// claim, scheduled and early close. Pools are injected admin-owned config;
// every balance movement goes through the ledger store with a keyed entry.
package staking

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/store"
	"github.com/stridefam/stridefam/internal/tokenomics"
)

var (
	ErrPoolNotFound      = errors.New("staking pool not found or disabled")
	ErrAmountOutOfRange  = errors.New("amount outside pool limits")
	ErrPlanNotEligible   = errors.New("subscription plan not eligible for pool")
	ErrCompoundingDenied = errors.New("pool does not allow compounding")
	ErrStillLocked       = errors.New("position is still locked")
	ErrNotLocked         = errors.New("position is not locked")
	ErrNothingAccrued    = errors.New("nothing accrued to claim")
	ErrCompoundClaim     = errors.New("compounding positions have no claimable accrual")
)

// PlanAprBonusBps is the APR bonus a family subscription adds on top of a
// pool's base rate.
func PlanAprBonusBps(plan model.Plan) int {
	switch plan {
	case model.PlanPlus:
		return 50
	case model.PlanPro:
		return 100
	default:
		return 0
	}
}

// DefaultPools mirrors the launch pool table.
func DefaultPools() []model.StakingPool {
	return []model.StakingPool{
		{
			ID: "flex", Symbol: "STRD", LockMonths: 0,
			MinAmount: 10, MaxAmount: 1_000_000,
			BaseAprBps: 500, CompoundingAllowed: true, Enabled: true,
		},
		{
			ID: "lock6", Symbol: "STRD", LockMonths: 6,
			MinAmount: 100, MaxAmount: 5_000_000,
			BaseAprBps: 800, EarlyExitPenaltyBps: 500,
			CompoundingAllowed: true, Enabled: true,
		},
		{
			ID: "lock12", Symbol: "STRD", LockMonths: 12,
			MinAmount: 1000, MaxAmount: 10_000_000,
			BaseAprBps: 1200, EarlyExitPenaltyBps: 1000,
			SubscribersOnly:    []model.Plan{model.PlanPlus, model.PlanPro},
			CompoundingAllowed: false, Enabled: true,
		},
	}
}

type Service struct {
	pools     map[string]model.StakingPool
	positions *store.StakingStore
	ledger    *store.LedgerStore
	logger    *slog.Logger
}

func NewService(pools []model.StakingPool, positions *store.StakingStore, ledger *store.LedgerStore, logger *slog.Logger) *Service {
	byID := make(map[string]model.StakingPool, len(pools))
	for _, p := range pools {
		byID[p.ID] = p
	}
	return &Service{pools: byID, positions: positions, ledger: ledger, logger: logger}
}

func (s *Service) Pool(id string) (model.StakingPool, bool) {
	p, ok := s.pools[id]
	if !ok || !p.Enabled {
		return model.StakingPool{}, false
	}
	return p, true
}

func (s *Service) Pools() []model.StakingPool {
	var out []model.StakingPool
	for _, p := range s.pools {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Open validates against the pool, debits the principal from the member's
// spendable balance, and creates the position. aprBpsFinal is resolved once
// at open time and never changes.
func (s *Service) Open(uid string, plan model.Plan, poolID string, amount float64, compound bool) (*model.StakingPosition, error) {
	pool, ok := s.Pool(poolID)
	if !ok {
		return nil, ErrPoolNotFound
	}
	if amount < pool.MinAmount || amount > pool.MaxAmount {
		return nil, ErrAmountOutOfRange
	}
	if len(pool.SubscribersOnly) > 0 && !planEligible(pool.SubscribersOnly, plan) {
		return nil, ErrPlanNotEligible
	}
	if compound && !pool.CompoundingAllowed {
		return nil, ErrCompoundingDenied
	}

	now := time.Now().UTC()
	var unlockAt *time.Time
	if pool.LockMonths > 0 {
		u := now.AddDate(0, pool.LockMonths, 0)
		unlockAt = &u
	}
	aprBpsFinal := pool.BaseAprBps + PlanAprBonusBps(plan)

	if err := s.ledger.DebitPersonal(uid, amount, store.Entry{
		Kind: model.EntryStake,
		Day:  now.Format("2006-01-02"),
		Ref:  poolID,
	}); err != nil {
		return nil, err
	}

	pos, err := s.positions.Create(uid, poolID, amount, aprBpsFinal, compound, now, unlockAt)
	if err != nil {
		return nil, fmt.Errorf("create position: %w", err)
	}

	s.logger.Info("position opened",
		"uid", uid, "pool", poolID, "amount", amount,
		"apr_bps", aprBpsFinal, "compound", compound, "position_id", pos.ID)
	return pos, nil
}

func planEligible(allowed []model.Plan, plan model.Plan) bool {
	for _, p := range allowed {
		if p == plan {
			return true
		}
	}
	return false
}

// DailyYield is the per-day accrual for one position, floored to 6 decimals
// so accrual never pays ahead of the position.
func DailyYield(amount float64, aprBps int) float64 {
	return tokenomics.Floor6(amount * (float64(aprBps) / 10000) / 365)
}

// AccrueDay applies one day's yield to one position. The keyed entry and the
// position increment commit in one transaction, so retried batch runs either
// replay as a no-op or apply both.
func (s *Service) AccrueDay(pos *model.StakingPosition, day string) error {
	yield := DailyYield(pos.Amount, pos.AprBps)
	if yield <= 0 {
		return nil
	}
	return s.ledger.ApplyStakeAccrual(pos.ID, day, yield)
}

// Claim pays out a non-compounding position's accrued yield to the member's
// spendable balance.
func (s *Service) Claim(uid, positionID string) (float64, error) {
	pos, err := s.owned(uid, positionID)
	if err != nil {
		return 0, err
	}
	if pos.Compound {
		return 0, ErrCompoundClaim
	}

	claimed, err := s.ledger.ClaimAccrued(positionID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if claimed <= 0 {
		return 0, ErrNothingAccrued
	}

	s.logger.Info("yield claimed", "uid", uid, "position_id", positionID, "amount", claimed)
	return claimed, nil
}

// Close is the scheduled, penalty-free path. It is only valid at or past
// unlockAt (or for lock-free pools); everything the position holds returns to
// the member's spendable balance.
func (s *Service) Close(uid, positionID string) (float64, error) {
	pos, err := s.owned(uid, positionID)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	if pos.Locked(now) {
		return 0, ErrStillLocked
	}
	return s.settle(pos, 0, now)
}

// CloseEarly exits a still-locked position, withholding
// amount * penaltyBps/10000 from the returned principal.
func (s *Service) CloseEarly(uid, positionID string) (returned, penalty float64, err error) {
	pos, err := s.owned(uid, positionID)
	if err != nil {
		return 0, 0, err
	}
	now := time.Now().UTC()
	if !pos.Locked(now) {
		return 0, 0, ErrNotLocked
	}

	pool, ok := s.pools[pos.PoolID]
	if ok {
		penalty = tokenomics.Round6(pos.Amount * float64(pool.EarlyExitPenaltyBps) / 10000)
	}
	returned, err = s.settle(pos, penalty, now)
	return returned, penalty, err
}

// settle closes the position and returns amount + accrued - penalty to the
// member. Close, entries and credit commit together, so a failed settle
// leaves the position active and retryable.
func (s *Service) settle(pos *model.StakingPosition, penalty float64, now time.Time) (float64, error) {
	returned, err := s.ledger.SettlePosition(pos.ID, penalty, now)
	if err != nil {
		return 0, err
	}

	s.logger.Info("position closed",
		"uid", pos.UID, "position_id", pos.ID, "returned", returned, "penalty", penalty)
	return returned, nil
}

func (s *Service) owned(uid, positionID string) (*model.StakingPosition, error) {
	pos, err := s.positions.GetByID(positionID)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.UID != uid {
		return nil, fmt.Errorf("position %q not found", positionID)
	}
	if pos.Status != model.PositionActive {
		return nil, store.ErrPositionClosed
	}
	return pos, nil
}

// Maturity thresholds for reminder notifications.
const (
	MaturitySoonWindow  = 7 * 24 * time.Hour
	MaturityFinalWindow = 24 * time.Hour
)

// MaturityThreshold names the reminder a position is due for, or "" when
// none. At most one threshold fires per call: the closest one.
func MaturityThreshold(pos *model.StakingPosition, now time.Time) string {
	if pos.UnlockAt == nil || pos.Status != model.PositionActive {
		return ""
	}
	until := pos.UnlockAt.Sub(now)
	if until <= 0 {
		return ""
	}
	if until <= MaturityFinalWindow {
		return "1d"
	}
	if until <= MaturitySoonWindow {
		return "7d"
	}
	return ""
}
