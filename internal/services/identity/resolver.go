package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "identity:name:"

// NameSource is the authoritative lookup, normally the users table.
type NameSource interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Resolver caches display names in Redis in front of a NameSource. Every call
// is bounded by the lookup timeout.
type Resolver struct {
	source  NameSource
	cache   *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

func NewResolver(source NameSource, cache *redis.Client, ttl, timeout time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *Resolver) DisplayName(ctx context.Context, userID string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	key := cacheKeyPrefix + userID
	if r.cache != nil {
		name, err := r.cache.Get(ctx, key).Result()
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug("identity cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	name, err := r.source.DisplayName(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", userID, err)
	}

	if r.cache != nil && name != "" {
		if err := r.cache.Set(ctx, key, name, r.ttl).Err(); err != nil {
			r.logger.Debug("identity cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return name, nil
}

// Forget drops a cached name, e.g. after a profile rename.
func (r *Resolver) Forget(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKeyPrefix+userID).Err(); err != nil {
		r.logger.Warn("identity cache delete failed", zap.String("user_id", userID), zap.Error(err))
	}
}
