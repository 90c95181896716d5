// models/location.go

package models

import "time"

// Reserved battery_status values. Rows carrying them are synthetic requests for a
// fresh fix and have no real position.
const (
	StatusLocationRequestTrigger = "LOCATION_REQUEST_TRIGGER"
	StatusTimestampUpdateTrigger = "TRIGGER_TIMESTAMP_UPDATE"
)

// Out-of-band battery levels written on trigger rows.
const (
	BatteryLocationRequestTrigger = -999
	BatteryTimestampUpdateTrigger = -888
)

// LocationPing is one row of the append-only locations table.
type LocationPing struct {
	ID            int64     `json:"id,omitempty"`
	UserID        string    `json:"user_id"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	UpdatedAt     time.Time `json:"updated_at"`
	BatteryLevel  *int      `json:"battery_level,omitempty"`
	BatteryStatus string    `json:"battery_status,omitempty"`
}

// IsTrigger reports whether the ping is a synthetic trigger row.
func (p LocationPing) IsTrigger() bool {
	return IsTriggerStatus(p.BatteryStatus)
}

func IsTriggerStatus(status string) bool {
	return status == StatusLocationRequestTrigger || status == StatusTimestampUpdateTrigger
}

// UserSnapshot is the reconciled latest state of one user. Never persisted.
type UserSnapshot struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	UpdatedAt     time.Time `json:"updated_at"`
	IsOnline      bool      `json:"is_online"`
	IsStale       bool      `json:"is_stale"`
	LocationAge   string    `json:"location_age"`
	BatteryLevel  *int      `json:"battery_level,omitempty"`
	BatteryStatus string    `json:"battery_status,omitempty"`
}

// DashboardStats mirrors the header counters of the dashboard.
type DashboardStats struct {
	TotalUsers     int        `json:"total_users"`
	OnlineUsers    int        `json:"online_users"`
	TotalLocations int        `json:"total_locations"`
	LastUpdate     *time.Time `json:"last_update"`
}

// DashboardView is what the API and the websocket hub hand to clients.
type DashboardView struct {
	Users     []UserSnapshot `json:"users"`
	Stats     DashboardStats `json:"stats"`
	LastError string         `json:"last_error,omitempty"`
}
