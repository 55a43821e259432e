package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/stridefam/stridefam/internal/model"
	"github.com/stridefam/stridefam/internal/reward"
)

// LedgerStore is the only component that mutates balances. Every mutation is
// an increment paired with an append-only ledger entry; entries carrying an
// idempotency key are inserted at most once, and the paired increment is
// skipped on replay.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Entry is the caller-supplied part of a ledger row.
type Entry struct {
	Kind           string
	Day            string
	Ref            string
	USDValue       *float64
	IdempotencyKey string
}

// appendEntry inserts a ledger row inside tx. Returns false when the
// idempotency key already exists, in which case the caller must skip the
// paired increment.
func appendEntry(tx *sql.Tx, familyID, uid *string, amount float64, e Entry) (bool, error) {
	var key sql.NullString
	if e.IdempotencyKey != "" {
		key = sql.NullString{String: e.IdempotencyKey, Valid: true}
	}
	var usd sql.NullFloat64
	if e.USDValue != nil {
		usd = sql.NullFloat64{Float64: *e.USDValue, Valid: true}
	}
	res, err := tx.Exec(
		`INSERT INTO ledger_entries (family_id, uid, kind, amount, usd_value, day, ref, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(idempotency_key) DO NOTHING`,
		nullStr(familyID), nullStr(uid), e.Kind, amount, usd, e.Day, e.Ref, key,
	)
	if err != nil {
		return false, fmt.Errorf("append ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func incrementPersonal(tx *sql.Tx, uid string, amount, earned float64) error {
	_, err := tx.Exec(
		`INSERT INTO balances (uid, personal, total_earned) VALUES (?, ?, ?)
		 ON CONFLICT(uid) DO UPDATE SET
		   personal = personal + excluded.personal,
		   total_earned = total_earned + excluded.total_earned,
		   updated_at = CURRENT_TIMESTAMP`,
		uid, amount, earned,
	)
	if err != nil {
		return fmt.Errorf("increment personal balance: %w", err)
	}
	return nil
}

func incrementContributed(tx *sql.Tx, uid string, amount float64) error {
	_, err := tx.Exec(
		`INSERT INTO balances (uid, family_contributed, total_earned) VALUES (?, ?, ?)
		 ON CONFLICT(uid) DO UPDATE SET
		   family_contributed = family_contributed + excluded.family_contributed,
		   total_earned = total_earned + excluded.total_earned,
		   updated_at = CURRENT_TIMESTAMP`,
		uid, amount, amount,
	)
	if err != nil {
		return fmt.Errorf("increment contributed balance: %w", err)
	}
	return nil
}

func incrementTreasury(tx *sql.Tx, familyID string, amount float64) error {
	_, err := tx.Exec(
		`INSERT INTO treasuries (family_id, balance) VALUES (?, ?)
		 ON CONFLICT(family_id) DO UPDATE SET
		   balance = balance + excluded.balance,
		   updated_at = CURRENT_TIMESTAMP`,
		familyID, amount,
	)
	if err != nil {
		return fmt.Errorf("increment treasury: %w", err)
	}
	return nil
}

func incrementLocked(tx *sql.Tx, familyID, uid string, amount float64) error {
	_, err := tx.Exec(
		`INSERT INTO locked_balances (family_id, uid, amount) VALUES (?, ?, ?)
		 ON CONFLICT(family_id, uid) DO UPDATE SET
		   amount = amount + excluded.amount,
		   updated_at = CURRENT_TIMESTAMP`,
		familyID, uid, amount,
	)
	if err != nil {
		return fmt.Errorf("increment locked balance: %w", err)
	}
	return nil
}

// CreditPersonal adds points to a member's spendable balance.
func (s *LedgerStore) CreditPersonal(uid string, amount float64, e Entry) error {
	return s.inTx(func(tx *sql.Tx) error {
		inserted, err := appendEntry(tx, nil, &uid, amount, e)
		if err != nil || !inserted {
			return err
		}
		return incrementPersonal(tx, uid, amount, amount)
	})
}

// CreditFamily adds points to the family treasury, attributing the lifetime
// contribution to fromUID when set.
func (s *LedgerStore) CreditFamily(familyID string, fromUID *string, amount float64, e Entry) error {
	return s.inTx(func(tx *sql.Tx) error {
		inserted, err := appendEntry(tx, &familyID, fromUID, amount, e)
		if err != nil || !inserted {
			return err
		}
		if err := incrementTreasury(tx, familyID, amount); err != nil {
			return err
		}
		if fromUID != nil {
			return incrementContributed(tx, *fromUID, amount)
		}
		return nil
	})
}

// CreditLocked adds points to a minor's guardian-locked vault.
func (s *LedgerStore) CreditLocked(familyID, uid string, amount float64, e Entry) error {
	return s.inTx(func(tx *sql.Tx) error {
		inserted, err := appendEntry(tx, &familyID, &uid, amount, e)
		if err != nil || !inserted {
			return err
		}
		if err := incrementLocked(tx, familyID, uid, amount); err != nil {
			return err
		}
		// Locked points still count toward lifetime earnings.
		return incrementPersonal(tx, uid, 0, amount)
	})
}

// DebitPersonal removes points from a member's spendable balance, recording
// the given entry. Used by staking opens and goal funding; lifetime earnings
// are untouched.
func (s *LedgerStore) DebitPersonal(uid string, amount float64, e Entry) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive")
	}
	return s.inTx(func(tx *sql.Tx) error {
		var personal float64
		err := tx.QueryRow(`SELECT personal FROM balances WHERE uid = ?`, uid).Scan(&personal)
		if err == sql.ErrNoRows || (err == nil && personal < amount) {
			return ErrInsufficientFunds
		}
		if err != nil {
			return fmt.Errorf("query balance: %w", err)
		}

		inserted, err := appendEntry(tx, nil, &uid, amount, e)
		if err != nil || !inserted {
			return err
		}
		return incrementPersonal(tx, uid, -amount, 0)
	})
}

// ReturnPersonal credits a member's spendable balance without touching
// lifetime earnings. Used for returned staking principal and goal
// withdrawals, which were counted as earned when first credited.
func (s *LedgerStore) ReturnPersonal(uid string, amount float64, e Entry) error {
	return s.inTx(func(tx *sql.Tx) error {
		inserted, err := appendEntry(tx, nil, &uid, amount, e)
		if err != nil || !inserted {
			return err
		}
		return incrementPersonal(tx, uid, amount, 0)
	})
}

// ReleaseLocked moves points from a minor's locked vault to their personal
// balance. Debit and credit happen in one transaction: both or neither.
func (s *LedgerStore) ReleaseLocked(familyID, uid string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("release amount must be positive")
	}
	return s.inTx(func(tx *sql.Tx) error {
		var locked float64
		err := tx.QueryRow(
			`SELECT amount FROM locked_balances WHERE family_id = ? AND uid = ?`,
			familyID, uid,
		).Scan(&locked)
		if err == sql.ErrNoRows || (err == nil && locked < amount) {
			return ErrInsufficientLocked
		}
		if err != nil {
			return fmt.Errorf("query locked balance: %w", err)
		}

		if err := incrementLocked(tx, familyID, uid, -amount); err != nil {
			return err
		}
		// The points were counted as earned when locked; only the spendable
		// column moves now.
		if err := incrementPersonal(tx, uid, amount, 0); err != nil {
			return err
		}
		_, err = appendEntry(tx, &familyID, &uid, amount, Entry{
			Kind: model.EntryLockRelease,
			Day:  utcDay(time.Now()),
		})
		return err
	})
}

// SpendPersonal debits a member's spendable balance and records the USD value
// against their daily spending limit.
func (s *LedgerStore) SpendPersonal(uid string, amount, usdValue float64, ref string) error {
	if amount <= 0 {
		return fmt.Errorf("spend amount must be positive")
	}
	return s.inTx(func(tx *sql.Tx) error {
		var personal float64
		err := tx.QueryRow(`SELECT personal FROM balances WHERE uid = ?`, uid).Scan(&personal)
		if err == sql.ErrNoRows || (err == nil && personal < amount) {
			return ErrInsufficientFunds
		}
		if err != nil {
			return fmt.Errorf("query balance: %w", err)
		}

		if err := incrementPersonal(tx, uid, -amount, 0); err != nil {
			return err
		}
		_, err = appendEntry(tx, nil, &uid, amount, Entry{
			Kind:     model.EntrySpentUSD,
			Day:      utcDay(time.Now()),
			Ref:      ref,
			USDValue: &usdValue,
		})
		return err
	})
}

// SpentTodayUSD sums a member's settled SPENT_USD entries for the current UTC
// day. Pending approvals do not count; the entry is written when the
// operation executes.
func (s *LedgerStore) SpentTodayUSD(uid string, now time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(usd_value), 0) FROM ledger_entries
		 WHERE uid = ? AND kind = ? AND day = ?`,
		uid, model.EntrySpentUSD, utcDay(now),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum spent today: %w", err)
	}
	return total.Float64, nil
}

// ApplyRewardPlan writes one user-day plan atomically: the reward row plus
// every keyed credit. A replay with the same run id is a silent no-op; a
// different run id against an already-paid day is rejected.
func (s *LedgerStore) ApplyRewardPlan(plan reward.Plan) error {
	return s.inTx(func(tx *sql.Tx) error {
		r := plan.Result
		res, err := tx.Exec(
			`INSERT INTO reward_results (uid, day, run_id, steps, weighted_steps, rate, points, family_share, personal_share, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(uid, day) DO NOTHING`,
			r.UID, r.Day, r.RunID, r.Steps, r.WeightedSteps, r.Rate, r.Points, r.FamilyShare, r.PersonalShare, r.Status,
		)
		if err != nil {
			return fmt.Errorf("insert reward result: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			var existingRun string
			if err := tx.QueryRow(
				`SELECT run_id FROM reward_results WHERE uid = ? AND day = ?`, r.UID, r.Day,
			).Scan(&existingRun); err != nil {
				return fmt.Errorf("query existing reward: %w", err)
			}
			if existingRun != r.RunID {
				return ErrDayAlreadyPaid
			}
			// Same run replayed: fall through so any credit that failed
			// mid-flight last time is retried; keyed entries dedupe the rest.
		}

		for _, c := range plan.Credits {
			entry := Entry{Kind: c.Kind, Day: r.Day, IdempotencyKey: c.Key}
			var familyID *string
			if c.FamilyID != "" {
				familyID = &c.FamilyID
			}
			uid := c.UID
			inserted, err := appendEntry(tx, familyID, &uid, c.Amount, entry)
			if err != nil {
				return err
			}
			if !inserted {
				continue
			}
			switch c.Target {
			case reward.TargetTreasury:
				if err := incrementTreasury(tx, c.FamilyID, c.Amount); err != nil {
					return err
				}
				if err := incrementContributed(tx, c.UID, c.Amount); err != nil {
					return err
				}
			case reward.TargetPersonal:
				if err := incrementPersonal(tx, c.UID, c.Amount, c.Amount); err != nil {
					return err
				}
			case reward.TargetLocked:
				if err := incrementLocked(tx, c.FamilyID, c.UID, c.Amount); err != nil {
					return err
				}
				if err := incrementPersonal(tx, c.UID, 0, c.Amount); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown credit target %q", c.Target)
			}
		}
		return nil
	})
}

// ApplyStakeAccrual records one position-day of staking yield atomically: the
// keyed STAKE_APR entry plus the position increment, both or neither. A
// replayed day is a silent no-op.
func (s *LedgerStore) ApplyStakeAccrual(positionID, day string, yield float64) error {
	return s.inTx(func(tx *sql.Tx) error {
		var uid string
		var compound int
		err := tx.QueryRow(
			`SELECT uid, compound FROM staking_positions WHERE id = ? AND status = ?`,
			positionID, model.PositionActive,
		).Scan(&uid, &compound)
		if err == sql.ErrNoRows {
			return ErrPositionClosed
		}
		if err != nil {
			return fmt.Errorf("query position: %w", err)
		}

		inserted, err := appendEntry(tx, nil, &uid, yield, Entry{
			Kind:           model.EntryStakeAPR,
			Day:            day,
			Ref:            positionID,
			IdempotencyKey: "stakeapr_" + positionID + "_" + day,
		})
		if err != nil || !inserted {
			return err
		}

		var amountDelta, accruedDelta float64
		if compound != 0 {
			amountDelta = yield
		} else {
			accruedDelta = yield
		}
		if _, err := tx.Exec(
			`UPDATE staking_positions SET amount = amount + ?, accrued = accrued + ? WHERE id = ?`,
			amountDelta, accruedDelta, positionID,
		); err != nil {
			return fmt.Errorf("accrue position: %w", err)
		}
		return nil
	})
}

// ClaimAccrued pays out a position's accrued yield to the member's spendable
// balance and zeroes it, in one transaction. Returns the claimed amount;
// concurrent claims pay out once.
func (s *LedgerStore) ClaimAccrued(positionID string, now time.Time) (float64, error) {
	var claimed float64
	err := s.inTx(func(tx *sql.Tx) error {
		var uid string
		err := tx.QueryRow(
			`SELECT uid, accrued FROM staking_positions WHERE id = ? AND status = ?`,
			positionID, model.PositionActive,
		).Scan(&uid, &claimed)
		if err == sql.ErrNoRows {
			return ErrPositionClosed
		}
		if err != nil {
			return fmt.Errorf("query position: %w", err)
		}
		if claimed <= 0 {
			return nil
		}

		if _, err := tx.Exec(
			`UPDATE staking_positions SET accrued = 0 WHERE id = ?`, positionID,
		); err != nil {
			return fmt.Errorf("zero accrued: %w", err)
		}
		if _, err := appendEntry(tx, nil, &uid, claimed, Entry{
			Kind: model.EntryStakeClaim,
			Day:  utcDay(now),
			Ref:  positionID,
		}); err != nil {
			return err
		}
		return incrementPersonal(tx, uid, claimed, claimed)
	})
	if err != nil {
		return 0, err
	}
	return claimed, nil
}

// SettlePosition closes a staking position and returns amount + accrued -
// penalty to the member's spendable balance. Close, ledger entries and credit
// commit together, so a failed settle leaves the position active and
// retryable.
func (s *LedgerStore) SettlePosition(positionID string, penalty float64, now time.Time) (float64, error) {
	var returned float64
	err := s.inTx(func(tx *sql.Tx) error {
		var uid string
		var amount, accrued float64
		err := tx.QueryRow(
			`SELECT uid, amount, accrued FROM staking_positions WHERE id = ? AND status = ?`,
			positionID, model.PositionActive,
		).Scan(&uid, &amount, &accrued)
		if err == sql.ErrNoRows {
			return ErrPositionClosed
		}
		if err != nil {
			return fmt.Errorf("query position: %w", err)
		}

		if _, err := tx.Exec(
			`UPDATE staking_positions SET status = ?, closed_at = ? WHERE id = ?`,
			model.PositionClosed, now.UTC(), positionID,
		); err != nil {
			return fmt.Errorf("close position: %w", err)
		}

		returned = amount + accrued - penalty
		if returned < 0 {
			returned = 0
		}

		day := utcDay(now)
		if penalty > 0 {
			if _, err := appendEntry(tx, nil, &uid, penalty, Entry{
				Kind:           model.EntryEarlyPenalty,
				Day:            day,
				Ref:            positionID,
				IdempotencyKey: "penalty_" + positionID,
			}); err != nil {
				return err
			}
		}
		inserted, err := appendEntry(tx, nil, &uid, returned, Entry{
			Kind:           model.EntryUnstake,
			Day:            day,
			Ref:            positionID,
			IdempotencyKey: "unstake_" + positionID,
		})
		if err != nil || !inserted {
			return err
		}
		return incrementPersonal(tx, uid, returned, 0)
	})
	if err != nil {
		return 0, err
	}
	return returned, nil
}

func (s *LedgerStore) Balance(uid string) (*model.Balance, error) {
	var b model.Balance
	err := s.db.QueryRow(
		`SELECT uid, personal, family_contributed, total_earned, updated_at FROM balances WHERE uid = ?`,
		uid,
	).Scan(&b.UID, &b.Personal, &b.FamilyContributed, &b.TotalEarned, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return &model.Balance{UID: uid}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &b, nil
}

func (s *LedgerStore) Locked(familyID, uid string) (*model.LockedBalance, error) {
	var lb model.LockedBalance
	err := s.db.QueryRow(
		`SELECT family_id, uid, amount, updated_at FROM locked_balances WHERE family_id = ? AND uid = ?`,
		familyID, uid,
	).Scan(&lb.FamilyID, &lb.UID, &lb.Amount, &lb.UpdatedAt)
	if err == sql.ErrNoRows {
		return &model.LockedBalance{FamilyID: familyID, UID: uid}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get locked balance: %w", err)
	}
	return &lb, nil
}

func (s *LedgerStore) TreasuryBalance(familyID string) (float64, error) {
	var balance float64
	err := s.db.QueryRow(`SELECT balance FROM treasuries WHERE family_id = ?`, familyID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get treasury balance: %w", err)
	}
	return balance, nil
}

// ReplayTreasury rebuilds the treasury balance from the ledger. Used to audit
// the materialized aggregate.
func (s *LedgerStore) ReplayTreasury(familyID string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE family_id = ? AND kind = ?`,
		familyID, model.EntryFamilyShare,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("replay treasury: %w", err)
	}
	return total.Float64, nil
}

const entryCols = `id, family_id, uid, kind, amount, usd_value, day, COALESCE(ref, ''), COALESCE(idempotency_key, ''), created_at`

func scanEntry(scanner interface{ Scan(...any) error }) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var familyID, uid sql.NullString
	var usd sql.NullFloat64

	err := scanner.Scan(&e.ID, &familyID, &uid, &e.Kind, &e.Amount, &usd, &e.Day, &e.Ref, &e.IdempotencyKey, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if familyID.Valid {
		e.FamilyID = &familyID.String
	}
	if uid.Valid {
		e.UID = &uid.String
	}
	if usd.Valid {
		e.USDValue = &usd.Float64
	}
	return &e, nil
}

func (s *LedgerStore) ListByFamily(familyID string, limit int) ([]model.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+entryCols+` FROM ledger_entries WHERE family_id = ? ORDER BY id DESC LIMIT ?`,
		familyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list family entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *LedgerStore) ListByUID(uid string, limit int) ([]model.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+entryCols+` FROM ledger_entries WHERE uid = ? ORDER BY id DESC LIMIT ?`,
		uid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list user entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *LedgerStore) inTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
