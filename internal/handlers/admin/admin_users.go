// handlers/admin_users.go
package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/pkg/response"
)

// ListUsers returns every account for the admin screen.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	response.RespondWithJSON(w, http.StatusOK, users)
}
