package model

import "time"

// UserDay is one user's activity context for a single date, joined with the
// membership fields the reward engine needs. Immutable once a reward run has
// paid the day.
type UserDay struct {
	UID        string    `json:"uid"`
	Day        string    `json:"day"` // YYYY-MM-DD, UTC
	FamilyID   *string   `json:"family_id"`
	AgeYears   *int      `json:"age_years"`
	Plan       Plan      `json:"plan"`
	TotalSteps int       `json:"total_steps"`
	UpdatedAt  time.Time `json:"updated_at"`
}
