package handler

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/store"
)

const (
	sessionCookieName = "stridefam_session"
	sessionTTL        = 90 * 24 * time.Hour
)

type AuthHandler struct {
	members  *store.MemberStore
	sessions *store.SessionStore
	logger   *slog.Logger
}

func NewAuthHandler(members *store.MemberStore, sessions *store.SessionStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{members: members, sessions: sessions, logger: logger}
}

type registerRequest struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	AgeYears *int   `json:"age_years"`
	PIN      string `json:"pin"`
}

// Register handles POST /api/auth/register: a solo signup. Family members
// are created by their owner instead.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UID == "" || req.Name == "" || len(req.PIN) < 4 {
		writeError(w, http.StatusBadRequest, "uid, name and a 4+ digit pin are required")
		return
	}
	if req.AgeYears != nil && (*req.AgeYears < 0 || *req.AgeYears > 120) {
		writeError(w, http.StatusBadRequest, "age_years out of range")
		return
	}

	member, err := h.members.Create(req.UID, req.Name, nil, req.AgeYears, 0)
	if err != nil {
		writeError(w, http.StatusConflict, "uid already taken")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err == nil {
		err = h.members.SetPIN(req.UID, string(hash))
	}
	if err != nil {
		h.logger.Error("set pin on register", "uid", req.UID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

type loginRequest struct {
	UID string `json:"uid"`
	PIN string `json:"pin"`
}

// Login handles POST /api/auth/login. Rate limited upstream.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UID == "" || req.PIN == "" {
		writeError(w, http.StatusBadRequest, "uid and pin are required")
		return
	}

	hash, err := h.members.GetPINHash(req.UID)
	if err != nil || hash == "" {
		// Same answer for unknown uid and unset PIN.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.PIN)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.sessions.Create(req.UID, sessionTTL)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	writeJSON(w, http.StatusOK, map[string]string{"uid": req.UID})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(cookie.Value); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

type setPINRequest struct {
	PIN string `json:"pin"`
}

// SetPIN handles POST /api/members/{uid}/pin. Members set their own PIN;
// the family owner can set any member's.
func (h *AuthHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid != auth.UID(r.Context()) && !auth.IsOwner(r.Context()) {
		writeError(w, http.StatusForbidden, "cannot set another member's pin")
		return
	}

	var req setPINRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.PIN) < 4 {
		writeError(w, http.StatusBadRequest, "pin must be at least 4 digits")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash pin", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.members.SetPIN(uid, string(hash)); err != nil {
		h.logger.Error("set pin", "uid", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
