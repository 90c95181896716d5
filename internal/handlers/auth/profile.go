package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/internal/middleware"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/pkg/response"
	"github.com/enesyuzak/locat-web-tracker/internal/repositories"
	services "github.com/enesyuzak/locat-web-tracker/internal/services/auth"
)

func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.RespondWithError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	user, err := h.service.Profile(r.Context(), userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		response.RespondWithError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("profile lookup failed", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	response.RespondWithJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.RespondWithError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	var upd models.ProfileUpdate
	if err := response.DecodeJSON(r, &upd); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, upd)
	switch {
	case errors.Is(err, services.ErrEmptyUsername):
		response.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repositories.ErrUsernameTaken):
		response.RespondWithError(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, repositories.ErrUserNotFound):
		response.RespondWithError(w, http.StatusNotFound, "User not found")
	case err != nil:
		h.logger.Error("profile update failed", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Failed to update profile")
	default:
		response.RespondWithJSON(w, http.StatusOK, user)
	}
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.RespondWithError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	var body models.ChangePasswordRequest
	if err := response.DecodeJSON(r, &body); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	body.Token = ""

	if h.passwordError(w, h.service.ChangePassword(r.Context(), userID, body)) {
		return
	}
	response.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}
