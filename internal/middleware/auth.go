package middleware

import (
	"net/http"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/pkg/response"
)

// RoleRequired lets the request through only when the token role is one of roles.
func RoleRequired(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRoleFromContext(r.Context())
			if role == "" {
				response.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			if !allowed[role] {
				response.RespondWithError(w, http.StatusForbidden, "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminOnly is RoleRequired(models.RoleAdmin).
func AdminOnly() func(http.Handler) http.Handler {
	return RoleRequired(models.RoleAdmin)
}
