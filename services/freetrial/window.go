package freetrial

import "time"

const dateLayout = "2006-01-02"

// DateOf drops the clock part of t, keeping the calendar day as seen in t's
// own location. The result is midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a YYYY-MM-DD civil date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

type window struct {
	start time.Time
	end   time.Time
}

func newWindow(start, end time.Time) window {
	return window{start: DateOf(start), end: DateOf(end)}
}

func (w window) contains(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(w.start) && !d.After(w.end)
}

// Exemptions is every window that can exempt a tenant's appointments. Load it
// once and query it per appointment.
type Exemptions struct {
	windows []window
}

func NewExemptions() *Exemptions {
	return &Exemptions{}
}

// Add registers an inclusive [start, end] window.
func (e *Exemptions) Add(start, end time.Time) {
	e.windows = append(e.windows, newWindow(start, end))
}

// Covers reports whether date falls inside at least one window. Overlapping
// windows still yield a single answer.
func (e *Exemptions) Covers(date time.Time) bool {
	if e == nil {
		return false
	}
	for _, w := range e.windows {
		if w.contains(date) {
			return true
		}
	}
	return false
}

func (e *Exemptions) Len() int {
	if e == nil {
		return 0
	}
	return len(e.windows)
}
