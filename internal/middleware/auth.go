package middleware

import (
	"context"
	"net/http"

	"artboard/internal/auth"
)

const userIDKey contextKey = "user_id"

// TokenVerifier checks an identity token and returns the user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireUser rejects requests without a valid identity token and injects
// the authenticated user id into the request context.
func RequireUser(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			userID, err := tokens.Verify(token)
			if err != nil {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID extracts the authenticated user id set by RequireUser.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
