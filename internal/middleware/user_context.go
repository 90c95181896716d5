// internal/middleware/user_context.go
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/jwtauth/v5"

	"github.com/enesyuzak/locat-web-tracker/config"
)

// GetUserIDFromContext returns the user id put there by AddUserIDToContext.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(config.UserIDKey).(string)
	return id, ok && id != ""
}

// GetRoleFromContext reads the role claim of the verified token.
func GetRoleFromContext(ctx context.Context) string {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil || claims == nil {
		return ""
	}
	role, _ := claims["role"].(string)
	return role
}

// AddUserIDToContext copies the user_id claim of a verified token into the
// request context.
func AddUserIDToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				next.ServeHTTP(w, r)
				return
			}

			var userID string
			switch v := claims["user_id"].(type) {
			case string:
				userID = v
			case float64:
				userID = strconv.FormatInt(int64(v), 10)
			}

			if userID != "" {
				ctx := context.WithValue(r.Context(), config.UserIDKey, userID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
