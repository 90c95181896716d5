// services/geo/geotrack.go

package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

var (
	ErrInvalidPing = errors.New("invalid location ping")
	ErrNoLocation  = errors.New("no location for user")
	ErrBadRange    = errors.New("invalid time range")
)

const lastLocationTTL = 5 * time.Minute

// storeIfNewer replaces the cached ping only when ARGV[1] (unix micros of the
// candidate) is strictly newer than the cached one.
var storeIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'at')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'at', ARGV[1], 'ping', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// PingStore is the write and per-user read side of the ping store.
type PingStore interface {
	Insert(ctx context.Context, ping *models.LocationPing) error
	History(ctx context.Context, userID string, from, to time.Time) ([]models.LocationPing, error)
	LatestForUser(ctx context.Context, userID string) (*models.LocationPing, error)
}

// GeoTrackService accepts device pings and serves per-user reads.
type GeoTrackService struct {
	store  PingStore
	redis  *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewGeoTrackService(store PingStore, redis *redis.Client, logger *zap.Logger) *GeoTrackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeoTrackService{
		store:  store,
		redis:  redis,
		logger: logger,
		now:    time.Now,
	}
}

// ValidatePing checks a device supplied ping. Trigger statuses are reserved for
// the server and refused here.
func ValidatePing(p *models.LocationPing) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidPing)
	}
	if !ValidCoordinates(p.Latitude, p.Longitude) {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidPing)
	}
	if p.BatteryLevel != nil && (*p.BatteryLevel < 0 || *p.BatteryLevel > 100) {
		return fmt.Errorf("%w: battery_level must be between 0 and 100", ErrInvalidPing)
	}
	if p.IsTrigger() {
		return fmt.Errorf("%w: reserved battery_status", ErrInvalidPing)
	}
	return nil
}

func (s *GeoTrackService) HandleUpdate(ctx context.Context, p *models.LocationPing) error {
	if err := ValidatePing(p); err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now().UTC()
	}

	if err := s.store.Insert(ctx, p); err != nil {
		s.logger.Error("failed to save ping", zap.String("user_id", p.UserID), zap.Error(err))
		return fmt.Errorf("save ping: %w", err)
	}

	if s.redis != nil {
		s.cacheIfNewer(ctx, p)
	}
	return nil
}

// cacheIfNewer keeps the cache on the newest ping when devices upload buffered
// fixes out of order.
func (s *GeoTrackService) cacheIfNewer(ctx context.Context, p *models.LocationPing) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	keys := []string{lastLocationKey(p.UserID)}
	err = storeIfNewer.Run(ctx, s.redis, keys, p.UpdatedAt.UnixMicro(), data, lastLocationTTL.Milliseconds()).Err()
	if err != nil {
		s.logger.Warn("failed to cache last location", zap.String("user_id", p.UserID), zap.Error(err))
	}
}

// LastLocation returns the newest real ping of a user, from cache when possible.
func (s *GeoTrackService) LastLocation(ctx context.Context, userID string) (*models.LocationPing, error) {
	if s.redis != nil {
		data, err := s.redis.HGet(ctx, lastLocationKey(userID), "ping").Bytes()
		if err == nil {
			var p models.LocationPing
			if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
				return &p, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("last location cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	p, err := s.store.LatestForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load last location: %w", err)
	}
	if p == nil {
		return nil, ErrNoLocation
	}
	return p, nil
}

// History returns real pings of userID with from <= updated_at <= to, oldest first.
func (s *GeoTrackService) History(ctx context.Context, userID string, from, to time.Time) ([]models.LocationPing, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrBadRange)
	}
	pings, err := s.store.History(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return pings, nil
}

func lastLocationKey(userID string) string {
	return "last:" + userID
}
