package store

import "errors"

// Precondition and authorization failures. Callers must not retry these
// without changing state.
var (
	ErrUnknownMember      = errors.New("unknown member")
	ErrNoFamily           = errors.New("member has no family")
	ErrNotOwner           = errors.New("only the family owner may do this")
	ErrAlreadyDecided     = errors.New("approval already decided")
	ErrInsufficientLocked = errors.New("insufficient locked balance")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrPositionClosed     = errors.New("position already closed")
	ErrDayAlreadyPaid     = errors.New("day already rewarded")
)
