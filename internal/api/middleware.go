// Package api implements the daily problem REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Cartooli/math-boredgames-sub001/internal/problemservice"
)

// ProfileHeader selects the profile whose annotations a request reads or
// changes. Absent means the default profile.
const ProfileHeader = "X-Profile-ID"

type ctxKey int

const profileKey ctxKey = iota

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ProfileMiddleware validates the profile header and stores it in the
// request context.
func ProfileMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ProfileHeader))
		if id != "" {
			if err := problemservice.ValidateProfileID(id); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("invalid "+ProfileHeader+" header"))
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), profileKey, id)))
	})
}

// profileFrom returns the profile stored by ProfileMiddleware ("" = default).
func profileFrom(ctx context.Context) string {
	id, _ := ctx.Value(profileKey).(string)
	return id
}
