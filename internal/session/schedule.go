package session

import "time"

// Schedule is the session-window predicate spec.md §6 consumes: "is
// this moment inside the configured session window, and is the active
// window the same one the session was created in." The core never
// computes calendars; it only asks the predicate.
type Schedule interface {
	// IsSessionTime reports whether t falls within the configured
	// session window.
	IsSessionTime(t time.Time) bool
	// IsSameSession reports whether creationTime and t fall within the
	// same occurrence of the session window (used to decide whether a
	// session spanning a window boundary should reset).
	IsSameSession(creationTime, t time.Time) bool
}

// AlwaysOpen is a Schedule whose window is always active, for
// point-to-point sessions that run continuously. It is the default
// used when no schedule is configured.
type AlwaysOpen struct{}

func (AlwaysOpen) IsSessionTime(time.Time) bool                { return true }
func (AlwaysOpen) IsSameSession(creationTime, t time.Time) bool { return true }

// DailyWindow is a reference Schedule for a session that should only
// run within a fixed daily wall-clock window (spec.md §6's
// StartTime/EndTime/TimeZone keys), e.g. an exchange's trading hours.
// It does not implement day-of-week or holiday calendars; NonStopSession
// deployments should use AlwaysOpen instead.
type DailyWindow struct {
	// Start and End are times-of-day, evaluated in Location.
	Start, End time.Duration
	Location   *time.Location
}

func (w DailyWindow) loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

func (w DailyWindow) timeOfDay(t time.Time) time.Duration {
	t = t.In(w.loc())
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// IsSessionTime reports whether t's time-of-day falls in [Start, End).
// If End < Start the window is treated as spanning midnight.
func (w DailyWindow) IsSessionTime(t time.Time) bool {
	tod := w.timeOfDay(t)
	if w.End < w.Start {
		return tod >= w.Start || tod < w.End
	}
	return tod >= w.Start && tod < w.End
}

// IsSameSession reports whether creationTime and t fall on the same
// calendar day (in Location) when the window does not span midnight,
// or whether neither has crossed an intervening End boundary when it
// does.
func (w DailyWindow) IsSameSession(creationTime, t time.Time) bool {
	c := creationTime.In(w.loc())
	n := t.In(w.loc())
	if w.End >= w.Start {
		cy, cm, cd := c.Date()
		ny, nm, nd := n.Date()
		return cy == ny && cm == nm && cd == nd
	}
	// Spans midnight: same session iff no End boundary has elapsed
	// between creationTime and t.
	boundary := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, w.loc()).Add(w.End)
	for !boundary.After(c) {
		boundary = boundary.Add(24 * time.Hour)
	}
	return !n.After(boundary)
}
