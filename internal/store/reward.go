package store

import (
	"database/sql"
	"fmt"

	"github.com/stridefam/stridefam/internal/model"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

const rewardCols = `uid, day, run_id, steps, weighted_steps, rate, points, family_share, personal_share, status, created_at`

func scanRewardResult(scanner interface{ Scan(...any) error }) (*model.RewardResult, error) {
	var r model.RewardResult
	err := scanner.Scan(&r.UID, &r.Day, &r.RunID, &r.Steps, &r.WeightedSteps, &r.Rate,
		&r.Points, &r.FamilyShare, &r.PersonalShare, &r.Status, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RewardStore) Get(uid, day string) (*model.RewardResult, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM reward_results WHERE uid = ? AND day = ?`, uid, day)
	r, err := scanRewardResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward result: %w", err)
	}
	return r, nil
}

func (s *RewardStore) ListByDay(day string) ([]model.RewardResult, error) {
	rows, err := s.db.Query(`SELECT `+rewardCols+` FROM reward_results WHERE day = ? ORDER BY uid`, day)
	if err != nil {
		return nil, fmt.Errorf("list reward results: %w", err)
	}
	defer rows.Close()
	return collectRewardResults(rows)
}

func (s *RewardStore) ListByUID(uid string, limit int) ([]model.RewardResult, error) {
	rows, err := s.db.Query(
		`SELECT `+rewardCols+` FROM reward_results WHERE uid = ? ORDER BY day DESC LIMIT ?`,
		uid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reward results by uid: %w", err)
	}
	defer rows.Close()
	return collectRewardResults(rows)
}

func collectRewardResults(rows *sql.Rows) ([]model.RewardResult, error) {
	var results []model.RewardResult
	for rows.Next() {
		r, err := scanRewardResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward result: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}
