package geo

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

// OnlineThreshold is the inclusive freshness limit for a user to count as online.
const OnlineThreshold = 30 * time.Minute

const (
	fallbackNamePrefix = "User_"
	fallbackIDLength   = 8
	defaultFanOut      = 8
)

// IdentityResolver turns a user id into a human readable label.
type IdentityResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Reconciler builds per-user snapshots out of a batch of raw pings. It keeps no
// state between calls: a user whose last real ping is not in the batch is absent
// from the result.
type Reconciler struct {
	resolver IdentityResolver
	logger   *zap.Logger
	fanOut   int
}

func NewReconciler(resolver IdentityResolver, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		resolver: resolver,
		logger:   logger,
		fanOut:   defaultFanOut,
	}
}

// Reconcile returns one snapshot per user that has at least one valid non-trigger
// ping. Snapshots come out in first-seen order of their user in pings.
func (r *Reconciler) Reconcile(ctx context.Context, pings []models.LocationPing, now time.Time) []models.UserSnapshot {
	latest, rejected := LatestByUser(pings)
	if rejected > 0 {
		r.logger.Warn("skipped pings with invalid coordinates", zap.Int("count", rejected))
	}

	names := r.resolveNames(ctx, latest)

	snapshots := make([]models.UserSnapshot, 0, len(latest))
	for i, p := range latest {
		snapshots = append(snapshots, buildSnapshot(p, names[i], now))
	}
	return snapshots
}

// LatestByUser folds pings into the newest valid non-trigger ping per user.
// A ping replaces the current best only when strictly newer, so equal timestamps
// keep the first one seen. The second return value counts pings dropped for bad
// coordinates or a missing user id.
func LatestByUser(pings []models.LocationPing) ([]models.LocationPing, int) {
	latest := make([]models.LocationPing, 0)
	index := make(map[string]int)
	rejected := 0

	for _, p := range pings {
		if p.IsTrigger() {
			continue
		}
		if p.UserID == "" || !ValidCoordinates(p.Latitude, p.Longitude) {
			rejected++
			continue
		}
		i, seen := index[p.UserID]
		if !seen {
			index[p.UserID] = len(latest)
			latest = append(latest, p)
			continue
		}
		if p.UpdatedAt.After(latest[i].UpdatedAt) {
			latest[i] = p
		}
	}
	return latest, rejected
}

// ValidCoordinates reports whether lat/lon are finite and inside WGS84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// IsOnline is true when updatedAt is at most OnlineThreshold before now.
func IsOnline(now, updatedAt time.Time) bool {
	return now.Sub(updatedAt) <= OnlineThreshold
}

// FallbackName is the label used when the identity lookup fails.
func FallbackName(userID string) string {
	short := userID
	if len(short) > fallbackIDLength {
		short = short[:fallbackIDLength]
	}
	return fallbackNamePrefix + short
}

func buildSnapshot(p models.LocationPing, name string, now time.Time) models.UserSnapshot {
	online := IsOnline(now, p.UpdatedAt)
	return models.UserSnapshot{
		ID:            p.UserID,
		Name:          name,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		UpdatedAt:     p.UpdatedAt,
		IsOnline:      online,
		IsStale:       !online,
		LocationAge:   AgeLabel(now, p.UpdatedAt),
		BatteryLevel:  p.BatteryLevel,
		BatteryStatus: p.BatteryStatus,
	}
}

// resolveNames looks up every user concurrently and waits for all of them.
// Failures never propagate; they degrade to FallbackName.
func (r *Reconciler) resolveNames(ctx context.Context, latest []models.LocationPing) []string {
	names := make([]string, len(latest))
	if r.resolver == nil {
		for i, p := range latest {
			names[i] = FallbackName(p.UserID)
		}
		return names
	}

	var g errgroup.Group
	g.SetLimit(r.fanOut)
	for i, p := range latest {
		g.Go(func() error {
			name, err := r.resolver.DisplayName(ctx, p.UserID)
			if err != nil || name == "" {
				if err != nil {
					r.logger.Debug("identity lookup failed", zap.String("user_id", p.UserID), zap.Error(err))
				}
				name = FallbackName(p.UserID)
			}
			names[i] = name
			return nil
		})
	}
	_ = g.Wait()
	return names
}
