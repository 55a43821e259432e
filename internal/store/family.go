package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/stridefam/stridefam/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

const familyCols = `id, name, owner_uid, plan, COALESCE(stripe_customer_id, ''), created_at, updated_at`

func scanFamily(scanner interface{ Scan(...any) error }) (*model.Family, error) {
	var f model.Family
	err := scanner.Scan(&f.ID, &f.Name, &f.OwnerUID, &f.Plan, &f.StripeCustomerID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *FamilyStore) Create(name, ownerUID string) (*model.Family, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO families (id, name, owner_uid) VALUES (?, ?, ?)`,
		id, name, ownerUID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	// Seed the treasury row so increments always have a target.
	if _, err := s.db.Exec(`INSERT INTO treasuries (family_id) VALUES (?)`, id); err != nil {
		return nil, fmt.Errorf("seed treasury: %w", err)
	}
	return s.GetByID(id)
}

func (s *FamilyStore) GetByID(id string) (*model.Family, error) {
	row := s.db.QueryRow(`SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) GetByStripeCustomer(customerID string) (*model.Family, error) {
	row := s.db.QueryRow(`SELECT `+familyCols+` FROM families WHERE stripe_customer_id = ?`, customerID)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family by customer: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) SetPlan(id string, plan model.Plan) error {
	_, err := s.db.Exec(
		`UPDATE families SET plan = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		plan, id,
	)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}

func (s *FamilyStore) SetStripeCustomer(id, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE families SET stripe_customer_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		customerID, id,
	)
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	return nil
}

func (s *FamilyStore) ListIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM families`)
	if err != nil {
		return nil, fmt.Errorf("list family ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
