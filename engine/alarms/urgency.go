package alarms

import (
	"time"

	"terriyaki/engine/badge"
)

// NextDelay picks how soon to look at the badge again; the closer the
// deadline the more often.
func NextDelay(tr badge.TimeRemaining) time.Duration {
	switch {
	case tr.TotalMinutes < 60:
		return 5 * time.Minute
	case tr.TotalMinutes < 180:
		return 15 * time.Minute
	case tr.TotalMinutes < 360:
		return 30 * time.Minute
	}
	return 60 * time.Minute
}
