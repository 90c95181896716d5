package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/repositories"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmptyUsername      = errors.New("username must not be empty")
)

// UserStore is what the auth flows need from the users table.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) error
}

// NameCache is notified when a user's display label may have changed.
type NameCache interface {
	Forget(ctx context.Context, userID string)
}

type AuthService struct {
	users  UserStore
	jwt    *JWTService
	resets *ResetTokens
	names  NameCache
	logger *zap.Logger
}

func NewAuthService(users UserStore, jwt *JWTService, resets *ResetTokens, names NameCache, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, jwt: jwt, resets: resets, names: names, logger: logger}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" || !CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, user)
}

// Refresh rotates a refresh token into a fresh token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	userID, err := s.jwt.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.jwt.RevokeRefreshToken(ctx, refreshToken)
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*models.AuthResponse, error) {
	token, refreshToken, err := s.jwt.GenerateToken(ctx, user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{
		Token:        token,
		RefreshToken: refreshToken,
		Role:         user.Role,
		User:         user,
	}, nil
}

// ForgotPassword issues a reset token for the account behind email. An unknown
// email yields an empty token and no error so callers cannot probe accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrUserNotFound) {
		s.logger.Info("password reset requested for unknown email")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	token, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return "", err
	}
	s.logger.Info("password reset token issued", zap.String("user_id", user.ID))
	return token, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, req models.ChangePasswordRequest) error {
	if err := ValidateNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	userID, err := s.resets.Consume(ctx, req.Token)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, userID, req.NewPassword)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := ValidateNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return s.setPassword(ctx, userID, req.NewPassword)
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*models.User, error) {
	if upd.Username != nil && strings.TrimSpace(*upd.Username) == "" {
		return nil, ErrEmptyUsername
	}
	if err := s.users.UpdateProfile(ctx, userID, upd); err != nil {
		return nil, err
	}
	if upd.Username != nil && s.names != nil {
		s.names.Forget(ctx, userID)
	}
	return s.users.GetByID(ctx, userID)
}
