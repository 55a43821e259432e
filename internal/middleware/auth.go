package middleware

import (
	"net/http"

	"github.com/stridefam/stridefam/internal/auth"
	"github.com/stridefam/stridefam/internal/store"
)

const sessionCookieName = "stridefam_session"

// RequireAuth validates the session cookie and populates AuthContext with
// the member's family and ownership. JSON clients get a plain 401.
func RequireAuth(sessions *store.SessionStore, members *store.MemberStore, families *store.FamilyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			member, err := members.GetByUID(sess.UID)
			if err != nil || member == nil {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				UID:       member.UID,
				FamilyID:  member.FamilyID,
				SessionID: sess.ID,
			}
			if member.FamilyID != nil {
				fam, err := families.GetByID(*member.FamilyID)
				if err == nil && fam != nil {
					ac.IsOwner = fam.OwnerUID == member.UID
				}
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOwner checks that the authenticated member owns their family.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsOwner(r.Context()) {
			http.Error(w, `{"error":"family owner only"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
}
