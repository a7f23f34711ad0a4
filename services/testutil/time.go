package testutil

import "time"

// Date builds a UTC civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Clock returns a now func pinned to t.
func Clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
