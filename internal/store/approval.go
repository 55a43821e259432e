package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stridefam/stridefam/internal/model"
)

type ApprovalStore struct {
	db *sql.DB
}

func NewApprovalStore(db *sql.DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

const approvalCols = `id, family_id, uid, type, payload, usd_value, status, decided_by, decided_at, created_at`

func scanApproval(scanner interface{ Scan(...any) error }) (*model.ApprovalRequest, error) {
	var a model.ApprovalRequest
	var payload string
	var decidedBy sql.NullString
	var decidedAt sql.NullTime

	err := scanner.Scan(&a.ID, &a.FamilyID, &a.UID, &a.Type, &payload, &a.USDValue,
		&a.Status, &decidedBy, &decidedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Payload = json.RawMessage(payload)
	if decidedBy.Valid {
		a.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		a.DecidedAt = &decidedAt.Time
	}
	return &a, nil
}

func (s *ApprovalStore) Create(familyID, uid string, op model.OperationType, payload json.RawMessage, usdValue float64) (*model.ApprovalRequest, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO approvals (id, family_id, uid, type, payload, usd_value) VALUES (?, ?, ?, ?, ?, ?)`,
		id, familyID, uid, op, string(payload), usdValue,
	)
	if err != nil {
		return nil, fmt.Errorf("insert approval: %w", err)
	}
	return s.GetByID(id)
}

func (s *ApprovalStore) GetByID(id string) (*model.ApprovalRequest, error) {
	row := s.db.QueryRow(`SELECT `+approvalCols+` FROM approvals WHERE id = ?`, id)
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return a, nil
}

func (s *ApprovalStore) ListPending(familyID string) ([]model.ApprovalRequest, error) {
	rows, err := s.db.Query(
		`SELECT `+approvalCols+` FROM approvals WHERE family_id = ? AND status = ? ORDER BY created_at`,
		familyID, model.ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []model.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		approvals = append(approvals, *a)
	}
	return approvals, rows.Err()
}

// Decide transitions a pending request to approved/rejected. The WHERE guard
// makes a decided request terminal: a second decision affects zero rows and
// returns ErrAlreadyDecided.
func (s *ApprovalStore) Decide(id, deciderUID string, status model.ApprovalStatus) (*model.ApprovalRequest, error) {
	if status != model.ApprovalApproved && status != model.ApprovalRejected {
		return nil, fmt.Errorf("invalid decision status %q", status)
	}
	res, err := s.db.Exec(
		`UPDATE approvals SET status = ?, decided_by = ?, decided_at = ? WHERE id = ? AND status = ?`,
		status, deciderUID, time.Now().UTC(), id, model.ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("decide approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.GetByID(id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, nil
		}
		return nil, ErrAlreadyDecided
	}
	return s.GetByID(id)
}
