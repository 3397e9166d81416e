package api

import (
	"context"
	"net/http"
	"strings"
)

// UserHeader carries the caller's username. Authentication happens upstream;
// this service trusts the header.
const UserHeader = "X-Username"

type usernameContextKey struct{}

// RequireUser rejects requests without a caller and stores it in the context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.Header.Get(UserHeader))
		if username == "" {
			writeError(w, http.StatusUnauthorized, UserHeader+" header required", nil)
			return
		}
		ctx := context.WithValue(r.Context(), usernameContextKey{}, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Username returns the caller set by RequireUser.
func Username(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameContextKey{}).(string)
	return username, ok
}
