package model

import "time"

type Member struct {
	UID              string    `json:"uid"`
	FamilyID         *string   `json:"family_id"`
	Name             string    `json:"name"`
	AgeYears         *int      `json:"age_years"`
	SpendingLimitUSD float64   `json:"spending_limit_usd"`
	HasPIN           bool      `json:"has_pin"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsMinor reports whether the member is under the given age limit.
// Members with no recorded age are treated as adults.
func (m *Member) IsMinor(limit int) bool {
	return m.AgeYears != nil && *m.AgeYears < limit
}
