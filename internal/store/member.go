package store

import (
	"database/sql"
	"fmt"

	"github.com/stridefam/stridefam/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `uid, family_id, name, age_years, spending_limit_usd, pin IS NOT NULL, created_at, updated_at`

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var familyID sql.NullString
	var age sql.NullInt64

	err := scanner.Scan(&m.UID, &familyID, &m.Name, &age, &m.SpendingLimitUSD, &m.HasPIN, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if familyID.Valid {
		m.FamilyID = &familyID.String
	}
	if age.Valid {
		a := int(age.Int64)
		m.AgeYears = &a
	}
	return &m, nil
}

func (s *MemberStore) Create(uid, name string, familyID *string, ageYears *int, spendingLimitUSD float64) (*model.Member, error) {
	var fid sql.NullString
	if familyID != nil {
		fid = sql.NullString{String: *familyID, Valid: true}
	}
	var age sql.NullInt64
	if ageYears != nil {
		age = sql.NullInt64{Int64: int64(*ageYears), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO members (uid, family_id, name, age_years, spending_limit_usd) VALUES (?, ?, ?, ?, ?)`,
		uid, fid, name, age, spendingLimitUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	// Seed the balance row so increments always have a target.
	if _, err := s.db.Exec(`INSERT INTO balances (uid) VALUES (?)`, uid); err != nil {
		return nil, fmt.Errorf("seed balance: %w", err)
	}
	return s.GetByUID(uid)
}

func (s *MemberStore) GetByUID(uid string) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE uid = ?`, uid)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) ListByFamily(familyID string) ([]model.Member, error) {
	rows, err := s.db.Query(`SELECT `+memberCols+` FROM members WHERE family_id = ? ORDER BY name`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) SetFamily(uid string, familyID *string) error {
	var fid sql.NullString
	if familyID != nil {
		fid = sql.NullString{String: *familyID, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE members SET family_id = ?, updated_at = CURRENT_TIMESTAMP WHERE uid = ?`,
		fid, uid,
	)
	if err != nil {
		return fmt.Errorf("set family: %w", err)
	}
	return nil
}

func (s *MemberStore) SetSpendingLimit(uid string, limitUSD float64) error {
	_, err := s.db.Exec(
		`UPDATE members SET spending_limit_usd = ?, updated_at = CURRENT_TIMESTAMP WHERE uid = ?`,
		limitUSD, uid,
	)
	if err != nil {
		return fmt.Errorf("set spending limit: %w", err)
	}
	return nil
}

func (s *MemberStore) SetPIN(uid, hashedPIN string) error {
	_, err := s.db.Exec(`UPDATE members SET pin = ? WHERE uid = ?`, hashedPIN, uid)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *MemberStore) GetPINHash(uid string) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRow(`SELECT pin FROM members WHERE uid = ?`, uid).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("member not found")
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	if !pin.Valid {
		return "", nil
	}
	return pin.String, nil
}
