package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/internal/middleware"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/pkg/response"
	"github.com/enesyuzak/locat-web-tracker/internal/repositories"
	authService "github.com/enesyuzak/locat-web-tracker/internal/services/auth"
)

type UserAdminStore interface {
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, u *models.User) error
	UpdateRole(ctx context.Context, id, role string) error
	Delete(ctx context.Context, id string) error
}

type NameCache interface {
	Forget(ctx context.Context, userID string)
}

type AdminHandler struct {
	users  UserAdminStore
	names  NameCache
	logger *zap.Logger
}

func NewAdminHandler(users UserAdminStore, names NameCache, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{users: users, names: names, logger: logger}
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// CreateUser adds an account. Device accounts use role "tracked".
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input CreateUserRequest
	if err := response.DecodeJSON(r, &input); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" {
		response.RespondWithError(w, http.StatusBadRequest, "Username is required")
		return
	}
	if input.Role == "" {
		input.Role = models.RoleViewer
	}
	if !models.ValidRole(input.Role) {
		response.RespondWithError(w, http.StatusBadRequest, "Role does not exist")
		return
	}
	if err := authService.ValidateNewPassword(input.Password, input.Password); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := authService.HashPassword(input.Password)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	user := &models.User{
		Username:     input.Username,
		Email:        strings.TrimSpace(input.Email),
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: hash,
		Role:         input.Role,
	}
	err = h.users.Create(r.Context(), user)
	if errors.Is(err, repositories.ErrUsernameTaken) {
		response.RespondWithError(w, http.StatusConflict, "Username already exists")
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "DB error creating user")
		return
	}

	h.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", user.Role))
	response.RespondWithJSON(w, http.StatusCreated, user)
}

func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var update struct {
		Role string `json:"role"`
	}
	if err := response.DecodeJSON(r, &update); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !models.ValidRole(update.Role) {
		response.RespondWithError(w, http.StatusBadRequest, "Role does not exist")
		return
	}
	if self, _ := middleware.GetUserIDFromContext(r.Context()); self == userID && update.Role != models.RoleAdmin {
		response.RespondWithError(w, http.StatusBadRequest, "Cannot remove your own admin role")
		return
	}

	err := h.users.UpdateRole(r.Context(), userID, update.Role)
	if errors.Is(err, repositories.ErrUserNotFound) {
		response.RespondWithError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("update role", zap.String("user_id", userID), zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Failed to update user role")
		return
	}

	response.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "User role updated successfully"})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if self, _ := middleware.GetUserIDFromContext(r.Context()); self == userID {
		response.RespondWithError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}

	err := h.users.Delete(r.Context(), userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		response.RespondWithError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("delete user", zap.String("user_id", userID), zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}
	if h.names != nil {
		h.names.Forget(r.Context(), userID)
	}

	response.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}
