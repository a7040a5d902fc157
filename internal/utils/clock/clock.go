package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock provides the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now.
func (System) Now() time.Time { return time.Now() }

// Calendar maps instants to service days in a fixed time zone.
//
// A service day is represented as midnight UTC of the local calendar date,
// so two days compare with Equal/Before/After and persist as plain dates.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// NewCalendar creates a calendar for the named IANA time zone.
func NewCalendar(c Clock, tz string) (*Calendar, error) {
	if c == nil {
		c = System{}
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", tz, err)
	}
	return &Calendar{clock: c, loc: loc}, nil
}

// Now returns the current instant in UTC. Stored timestamps share one offset
// so they order correctly as text on drivers without a native time type.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().UTC()
}

// Today returns the current service day.
func (c *Calendar) Today() time.Time {
	return DayOf(c.clock.Now(), c.loc)
}

// Location returns the calendar's zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// DayOf returns the service day containing t in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return Date(y, m, d)
}

// Date builds a service day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a service day by n calendar days.
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// ParseDay parses a YYYY-MM-DD service day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// Manual is a settable clock for tests and replay tools.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at now.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

// Now returns the current manual instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
