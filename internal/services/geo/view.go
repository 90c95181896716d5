package geo

import (
	"sort"
	"strings"
	"time"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

// SortByRecency orders snapshots most recently updated first, id breaking ties.
func SortByRecency(snapshots []models.UserSnapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		a, b := snapshots[i], snapshots[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// FilterSnapshots keeps snapshots whose name or id contains term, ignoring case.
// An empty term returns the input unchanged.
func FilterSnapshots(snapshots []models.UserSnapshot, term string) []models.UserSnapshot {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return snapshots
	}
	out := make([]models.UserSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if strings.Contains(strings.ToLower(s.Name), term) || strings.Contains(strings.ToLower(s.ID), term) {
			out = append(out, s)
		}
	}
	return out
}

// BuildStats computes the dashboard counters. totalLocations is the raw batch size.
func BuildStats(snapshots []models.UserSnapshot, totalLocations int, lastUpdate time.Time) models.DashboardStats {
	online := 0
	for _, s := range snapshots {
		if s.IsOnline {
			online++
		}
	}
	return models.DashboardStats{
		TotalUsers:     len(snapshots),
		OnlineUsers:    online,
		TotalLocations: totalLocations,
		LastUpdate:     &lastUpdate,
	}
}
