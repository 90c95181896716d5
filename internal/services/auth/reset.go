package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidResetToken = errors.New("invalid or expired reset token")

const resetKeyPrefix = "pwreset:"

// ResetTokens stores single-use password reset tokens in Redis.
type ResetTokens struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewResetTokens(redis *redis.Client, ttl time.Duration) *ResetTokens {
	return &ResetTokens{redis: redis, ttl: ttl}
}

func (t *ResetTokens) Issue(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := t.redis.Set(ctx, resetKeyPrefix+token, userID, t.ttl).Err(); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	return token, nil
}

// Consume returns the user id bound to token and invalidates it.
func (t *ResetTokens) Consume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidResetToken
	}
	userID, err := t.redis.GetDel(ctx, resetKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidResetToken
	}
	if err != nil {
		return "", fmt.Errorf("read reset token: %w", err)
	}
	return userID, nil
}
