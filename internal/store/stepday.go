package store

import (
	"database/sql"
	"fmt"

	"github.com/stridefam/stridefam/internal/model"
)

type StepStore struct {
	db *sql.DB
}

func NewStepStore(db *sql.DB) *StepStore {
	return &StepStore{db: db}
}

// UpsertDay records a device-synced step total. A day that a reward run has
// already settled is immutable.
func (s *StepStore) UpsertDay(uid, day string, steps int) error {
	var paid int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM reward_results WHERE uid = ? AND day = ?`, uid, day,
	).Scan(&paid)
	if err != nil {
		return fmt.Errorf("check day settled: %w", err)
	}
	if paid > 0 {
		return ErrDayAlreadyPaid
	}

	_, err = s.db.Exec(
		`INSERT INTO step_days (uid, day, steps) VALUES (?, ?, ?)
		 ON CONFLICT(uid, day) DO UPDATE SET steps = excluded.steps, updated_at = CURRENT_TIMESTAMP`,
		uid, day, steps,
	)
	if err != nil {
		return fmt.Errorf("upsert step day: %w", err)
	}
	return nil
}

func (s *StepStore) GetDay(uid, day string) (int, error) {
	var steps int
	err := s.db.QueryRow(`SELECT steps FROM step_days WHERE uid = ? AND day = ?`, uid, day).Scan(&steps)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get step day: %w", err)
	}
	return steps, nil
}

// ListForDay joins step totals with membership so the reward engine gets one
// self-contained context per user.
func (s *StepStore) ListForDay(day string) ([]model.UserDay, error) {
	rows, err := s.db.Query(
		`SELECT sd.uid, sd.day, m.family_id, m.age_years, COALESCE(f.plan, 'free'), sd.steps, sd.updated_at
		 FROM step_days sd
		 JOIN members m ON m.uid = sd.uid
		 LEFT JOIN families f ON f.id = m.family_id
		 WHERE sd.day = ?
		 ORDER BY sd.uid`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("list step days: %w", err)
	}
	defer rows.Close()

	var users []model.UserDay
	for rows.Next() {
		var u model.UserDay
		var familyID sql.NullString
		var age sql.NullInt64
		if err := rows.Scan(&u.UID, &u.Day, &familyID, &age, &u.Plan, &u.TotalSteps, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan step day: %w", err)
		}
		if familyID.Valid {
			u.FamilyID = &familyID.String
		}
		if age.Valid {
			a := int(age.Int64)
			u.AgeYears = &a
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
