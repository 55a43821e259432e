package store

import (
	"database/sql"
	"fmt"

	"github.com/stridefam/stridefam/internal/model"
)

type GoalStore struct {
	db *sql.DB
}

func NewGoalStore(db *sql.DB) *GoalStore {
	return &GoalStore{db: db}
}

const goalCols = `id, uid, name, target, saved, created_at, updated_at`

func scanGoal(scanner interface{ Scan(...any) error }) (*model.Goal, error) {
	var g model.Goal
	err := scanner.Scan(&g.ID, &g.UID, &g.Name, &g.Target, &g.Saved, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *GoalStore) Create(uid, name string, target float64) (*model.Goal, error) {
	result, err := s.db.Exec(
		`INSERT INTO goals (uid, name, target) VALUES (?, ?, ?)`,
		uid, name, target,
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *GoalStore) GetByID(id int64) (*model.Goal, error) {
	row := s.db.QueryRow(`SELECT `+goalCols+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *GoalStore) ListByUID(uid string) ([]model.Goal, error) {
	rows, err := s.db.Query(`SELECT `+goalCols+` FROM goals WHERE uid = ? ORDER BY created_at`, uid)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// AddSaved increments a goal's saved amount; negative deltas withdraw. The
// guard keeps saved from going below zero.
func (s *GoalStore) AddSaved(id int64, delta float64) error {
	res, err := s.db.Exec(
		`UPDATE goals SET saved = saved + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND saved + ? >= 0`,
		delta, id, delta,
	)
	if err != nil {
		return fmt.Errorf("update goal saved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (s *GoalStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}
