package badge

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// badge colors, most urgent first
const (
	ColorDarkRed = "#d32f2f"
	ColorRed     = "#f5576c"
	ColorOrange  = "#ff9800"
	ColorGreen   = "#4caf50"

	// completed task
	ColorDone = ColorGreen
	TextDone  = "✓"

	// expired, too far out to fit, or nothing left
	TextUrgent = "!"
)

type TimeRemaining struct {
	Expired      bool `json:"expired"`
	Hours        int  `json:"hours"`
	Minutes      int  `json:"minutes"`
	TotalMinutes int  `json:"totalMinutes"`
}

// Deadline returns 23:59:59.999 of the calendar day of date, in local time.
func Deadline(date time.Time) time.Time {
	d := date.In(time.Local)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(999*time.Millisecond), time.Local)
}

// ParseTaskDate accepts either a bare calendar date (2006-01-02), taken as a
// local date, or an RFC 3339 timestamp.
func ParseTaskDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty task date")
	}
	if t, err := time.ParseInLocation("2006-01-02", value, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.In(time.Local), nil
	}
	return time.Time{}, errors.New("unrecognized task date " + strconv.Quote(value))
}

func ComputeTimeRemaining(date time.Time, now time.Time) TimeRemaining {
	left := Deadline(date).Sub(now)
	if left <= 0 {
		return TimeRemaining{Expired: true}
	}

	return TimeRemaining{
		Hours:        int(left / time.Hour),
		Minutes:      int((left % time.Hour) / time.Minute),
		TotalMinutes: int(left / time.Minute),
	}
}

// FormatText maps remaining time to at most a few badge characters.
func FormatText(tr *TimeRemaining) string {
	if tr == nil || tr.Expired {
		return TextUrgent
	}
	switch {
	case tr.Hours >= 10:
		return TextUrgent
	case tr.Hours >= 1:
		return strconv.Itoa(tr.Hours) + "h"
	case tr.TotalMinutes > 0:
		return strconv.Itoa(tr.TotalMinutes) + "m"
	}
	return TextUrgent
}

// Color picks the most urgent tier whose hour or minute threshold holds.
// Both checks describe the same quantity, whichever fires first wins.
func Color(tr *TimeRemaining) string {
	if tr == nil || tr.Expired {
		return ColorDarkRed
	}
	switch {
	case tr.Hours < 2 || tr.TotalMinutes < 2*60:
		return ColorDarkRed
	case tr.Hours < 6 || tr.TotalMinutes < 6*60:
		return ColorRed
	case tr.Hours < 12 || tr.TotalMinutes < 12*60:
		return ColorOrange
	}
	return ColorGreen
}
