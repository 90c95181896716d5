package export

import (
	"time"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

// Header is the column layout shared by every export target.
var Header = []interface{}{
	"Exported At", "User ID", "Name", "Latitude", "Longitude",
	"Updated At", "Online", "Location Age", "Battery Level", "Battery Status",
}

// SnapshotRows flattens users into export rows, one per user.
func SnapshotRows(users []models.UserSnapshot, exportedAt time.Time) [][]interface{} {
	stamp := exportedAt.UTC().Format(time.RFC3339)
	rows := make([][]interface{}, 0, len(users))
	for _, u := range users {
		var battery interface{} = ""
		if u.BatteryLevel != nil {
			battery = *u.BatteryLevel
		}
		online := "no"
		if u.IsOnline {
			online = "yes"
		}
		rows = append(rows, []interface{}{
			stamp,
			u.ID,
			u.Name,
			u.Latitude,
			u.Longitude,
			u.UpdatedAt.UTC().Format(time.RFC3339),
			online,
			u.LocationAge,
			battery,
			u.BatteryStatus,
		})
	}
	return rows
}
