package geo

import (
	"fmt"
	"time"
)

const (
	minutesPerHour = 60
	minutesPerDay  = 1440
)

// AgeLabel buckets the age of updatedAt relative to now. Future timestamps are
// treated as "just now".
func AgeLabel(now, updatedAt time.Time) string {
	minutes := int(now.Sub(updatedAt) / time.Minute)
	switch {
	case minutes < 1:
		return "just now"
	case minutes < minutesPerHour:
		return plural(minutes, "minute")
	case minutes < minutesPerDay:
		return plural(minutes/minutesPerHour, "hour")
	default:
		return plural(minutes/minutesPerDay, "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
