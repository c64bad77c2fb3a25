package arrears

import "time"

// civilDate drops the time of day, keeping the UTC calendar date.
func civilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b (negative when b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(civilDate(b).Sub(civilDate(a)).Hours() / 24)
}

func overdue(due, today time.Time) int {
	if d := DaysBetween(due, today); d > 0 {
		return d
	}
	return 0
}
