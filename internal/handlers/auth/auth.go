// handlers/auth/auth.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/pkg/response"
	"github.com/enesyuzak/locat-web-tracker/internal/repositories"
	services "github.com/enesyuzak/locat-web-tracker/internal/services/auth"
)

type AuthService interface {
	Login(ctx context.Context, username, password string) (*models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, req models.ChangePasswordRequest) error
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error
	Profile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error)
}

type AuthHandler struct {
	service AuthService
	// returnResetToken puts the reset token in the forgot-password response;
	// only for environments without mail delivery.
	returnResetToken bool
	logger           *zap.Logger
}

func NewAuthHandler(service AuthService, returnResetToken bool, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{service: service, returnResetToken: returnResetToken, logger: logger}
}

func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var loginData models.LoginRequest
	if err := response.DecodeJSON(r, &loginData); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	if strings.TrimSpace(loginData.Username) == "" || loginData.Password == "" {
		response.RespondWithError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	resp, err := h.service.Login(r.Context(), loginData.Username, loginData.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		response.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	response.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var body models.RefreshRequest
	if err := response.DecodeJSON(r, &body); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if body.RefreshToken == "" {
		response.RespondWithError(w, http.StatusUnauthorized, "Refresh token required")
		return
	}

	resp, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if errors.Is(err, services.ErrInvalidRefreshToken) {
		response.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	if err != nil {
		h.logger.Error("token refresh failed", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Could not generate token")
		return
	}
	response.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var body models.RefreshRequest
	// an empty body still logs out on the client side
	_ = response.DecodeJSON(r, &body)

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		h.logger.Warn("refresh token revoke failed", zap.Error(err))
	}
	response.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var body models.ForgotPasswordRequest
	if err := response.DecodeJSON(r, &body); err != nil || strings.TrimSpace(body.Email) == "" {
		response.RespondWithError(w, http.StatusBadRequest, "Email is required")
		return
	}

	token, err := h.service.ForgotPassword(r.Context(), body.Email)
	if err != nil {
		h.logger.Error("password reset request failed", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Could not start password reset")
		return
	}

	resp := map[string]string{"message": "If the address is registered, a reset link has been sent"}
	if h.returnResetToken && token != "" {
		resp["token"] = token
	}
	response.RespondWithJSON(w, http.StatusAccepted, resp)
}

func (h *AuthHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var body models.ChangePasswordRequest
	if err := response.DecodeJSON(r, &body); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	err := h.service.ResetPassword(r.Context(), body)
	if h.passwordError(w, err) {
		return
	}
	response.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// passwordError writes the response for a failed password update and reports
// whether it did.
func (h *AuthHandler) passwordError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, services.ErrPasswordTooShort), errors.Is(err, services.ErrPasswordMismatch):
		response.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidResetToken):
		response.RespondWithError(w, http.StatusBadRequest, "Invalid or expired reset token")
	case errors.Is(err, repositories.ErrUserNotFound):
		response.RespondWithError(w, http.StatusNotFound, "User not found")
	default:
		h.logger.Error("password update failed", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Failed to update password")
	}
	return true
}
