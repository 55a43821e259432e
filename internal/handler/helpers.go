package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stridefam/stridefam/internal/staking"
	"github.com/stridefam/stridefam/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// writeDomainError maps known sentinel errors to client statuses; anything
// unrecognized is a 500 and the caller should have logged it.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrInsufficientLocked):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrNoFamily),
		errors.Is(err, store.ErrUnknownMember),
		errors.Is(err, store.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrAlreadyDecided),
		errors.Is(err, store.ErrDayAlreadyPaid),
		errors.Is(err, store.ErrPositionClosed),
		errors.Is(err, staking.ErrStillLocked),
		errors.Is(err, staking.ErrNotLocked),
		errors.Is(err, staking.ErrNothingAccrued),
		errors.Is(err, staking.ErrCompoundClaim):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, staking.ErrPoolNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, staking.ErrAmountOutOfRange),
		errors.Is(err, staking.ErrPlanNotEligible),
		errors.Is(err, staking.ErrCompoundingDenied):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
