package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stridefam/stridefam/internal/model"
)

// StakingStore reads and creates positions. Mutations that move value
// (accrual, claim, settle) live on LedgerStore so they commit with their
// ledger entries.
type StakingStore struct {
	db *sql.DB
}

func NewStakingStore(db *sql.DB) *StakingStore {
	return &StakingStore{db: db}
}

const positionCols = `id, uid, pool_id, amount, apr_bps, accrued, compound, since, unlock_at, status, closed_at`

func scanPosition(scanner interface{ Scan(...any) error }) (*model.StakingPosition, error) {
	var p model.StakingPosition
	var compound int
	var unlockAt, closedAt sql.NullTime

	err := scanner.Scan(&p.ID, &p.UID, &p.PoolID, &p.Amount, &p.AprBps, &p.Accrued,
		&compound, &p.Since, &unlockAt, &p.Status, &closedAt)
	if err != nil {
		return nil, err
	}
	p.Compound = compound != 0
	if unlockAt.Valid {
		p.UnlockAt = &unlockAt.Time
	}
	if closedAt.Valid {
		p.ClosedAt = &closedAt.Time
	}
	return &p, nil
}

func (s *StakingStore) Create(uid, poolID string, amount float64, aprBps int, compound bool, since time.Time, unlockAt *time.Time) (*model.StakingPosition, error) {
	id := uuid.NewString()
	var c int
	if compound {
		c = 1
	}
	var unlock sql.NullTime
	if unlockAt != nil {
		unlock = sql.NullTime{Time: *unlockAt, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO staking_positions (id, uid, pool_id, amount, apr_bps, compound, since, unlock_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, uid, poolID, amount, aprBps, c, since.UTC(), unlock,
	)
	if err != nil {
		return nil, fmt.Errorf("insert position: %w", err)
	}
	return s.GetByID(id)
}

func (s *StakingStore) GetByID(id string) (*model.StakingPosition, error) {
	row := s.db.QueryRow(`SELECT `+positionCols+` FROM staking_positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (s *StakingStore) ListActive() ([]model.StakingPosition, error) {
	rows, err := s.db.Query(
		`SELECT `+positionCols+` FROM staking_positions WHERE status = ? ORDER BY since`,
		model.PositionActive,
	)
	if err != nil {
		return nil, fmt.Errorf("list active positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *StakingStore) ListByUID(uid string) ([]model.StakingPosition, error) {
	rows, err := s.db.Query(
		`SELECT `+positionCols+` FROM staking_positions WHERE uid = ? ORDER BY since DESC`,
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("list positions by uid: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func collectPositions(rows *sql.Rows) ([]model.StakingPosition, error) {
	var positions []model.StakingPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

