package middleware

import (
	"net/http"

	"github.com/larder-app/larder/internal/auth"
	"github.com/larder-app/larder/internal/store"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "larder_session"

// RequireAuth validates the session cookie, resolves the caller's household
// membership, and populates the caller context. Household membership is looked
// up per request rather than baked into the session, so joining or leaving a
// household takes effect immediately on every open session.
func RequireAuth(sessions *store.SessionStore, households *store.HouseholdStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			caller := auth.Context{
				UserID:    sess.UserID,
				SessionID: sess.ID,
			}
			if home, err := households.GetForUser(sess.UserID); err == nil && home != nil {
				caller.HouseholdID = home.ID
			}

			ctx := auth.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireHousehold rejects callers that have not created or joined a
// household yet. Must run after RequireAuth.
func RequireHousehold(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.Caller(r.Context()).HasHousehold() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"no household"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"authentication required"}`))
}
