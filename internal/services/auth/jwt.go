package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

const refreshKeyPrefix = "refresh:"

// JWTService signs access tokens and keeps opaque refresh tokens in Redis.
type JWTService struct {
	secretKey  []byte
	redis      *redis.Client
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewJWTService(secretKey string, redis *redis.Client, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		secretKey:  []byte(secretKey),
		redis:      redis,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// GenerateToken returns a signed access token and a new refresh token.
func (s *JWTService) GenerateToken(ctx context.Context, userID, username, role string) (string, string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"role":     role,
		"exp":      now.Add(s.accessTTL).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}

	refreshToken := uuid.NewString()
	if err := s.redis.Set(ctx, refreshKeyPrefix+refreshToken, userID, s.refreshTTL).Err(); err != nil {
		return "", "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

// ValidateRefreshToken consumes the refresh token and returns its user id. Each
// refresh token works once.
func (s *JWTService) ValidateRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrInvalidRefreshToken
	}
	userID, err := s.redis.GetDel(ctx, refreshKeyPrefix+refreshToken).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	return userID, nil
}

func (s *JWTService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.redis.Del(ctx, refreshKeyPrefix+refreshToken).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
